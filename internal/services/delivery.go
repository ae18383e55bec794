package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/soaringjerry/valuesreport/internal/logging"
)

const DocumentCaption = "Here is your personalised Values report!"

// Document is the renderable model handed to a Renderer.
type Document struct {
	DisplayName string
	GeneratedOn time.Time
	Submission  *Submission
	Report      *Report
}

// NewDocument builds the render model; an empty display name becomes "User".
func NewDocument(sub *Submission, report *Report) *Document {
	name := sub.Username
	if name == "" {
		name = "User"
	}
	return &Document{DisplayName: name, GeneratedOn: report.GeneratedAt, Submission: sub, Report: report}
}

// Renderer is the document-render boundary. It writes a temporary artifact
// and returns its path; the caller owns the file afterwards.
type Renderer interface {
	Render(ctx context.Context, doc *Document) (string, error)
}

// Attachment is a file sent over the transport.
type Attachment struct {
	Name    string
	Data    []byte
	Caption string
}

// DocumentSender is the file-sending half of the transport boundary.
type DocumentSender interface {
	SendDocument(ctx context.Context, userID int64, att Attachment) error
}

// Delivery renders a report, sends it to the user and removes the artifact.
type Delivery struct {
	renderer Renderer
	sender   DocumentSender
	logger   *zap.Logger
	remove   func(string) error
}

func NewDelivery(renderer Renderer, sender DocumentSender, logger *zap.Logger) *Delivery {
	return &Delivery{renderer: renderer, sender: sender, logger: logging.OrNop(logger), remove: os.Remove}
}

// ArtifactName is the file name shown to the user.
func ArtifactName(userID int64) string {
	return fmt.Sprintf("Values_Report_%d.pdf", userID)
}

// Deliver returns render and send failures. Cleanup failures are only logged.
func (d *Delivery) Deliver(ctx context.Context, sub *Submission, report *Report) error {
	path, err := d.renderer.Render(ctx, NewDocument(sub, report))
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	defer d.cleanup(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rendered report: %w", err)
	}
	att := Attachment{Name: ArtifactName(sub.UserID), Data: data, Caption: DocumentCaption}
	if err := d.sender.SendDocument(ctx, sub.UserID, att); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	d.logger.Info("report delivered",
		zap.Int64("user_id", sub.UserID), zap.String("report_id", report.ID), zap.Int("bytes", len(data)))
	return nil
}

func (d *Delivery) cleanup(path string) {
	if err := d.remove(path); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("remove temporary report failed", zap.String("path", path), zap.Error(err))
		return
	}
	d.logger.Debug("temporary report removed", zap.String("path", path))
}
