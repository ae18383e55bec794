package flow

import (
	"fmt"
	"strings"
)

const (
	msgWelcome = "Welcome to your Personal Values Report Generator! 🌟\n\n" +
		"Thanks for taking part in the Knowing My Values exercise. We've set up a bot to help you generate a personalised report based on your top 10 values.\n\n" +
		promptAccessCode

	promptAccessCode = "Please enter your access code to begin. If you don't have one, please contact the administrator."
	promptTopFive    = "Please enter your top 5 values, separated by commas, in order of importance:"
	promptNextFive   = "Now, please enter your next 5 values (positions 6-10) in no particular order:"
	promptAge        = "Now, please enter your age:"
	promptCountry    = "Now, please enter your country of residence:"
	promptOccupation = "Finally, please enter your occupation:"

	msgAccessGranted = "✅ Access code verified! You can now proceed with creating your values report.\n\n" +
		"Let's start with your top 5 values in ranked order (1st to 5th).\n\n" + promptTopFive
	msgAccessDenied      = "⚠️ Invalid access code. Please check your code and try again, or contact the administrator."
	msgAccessUnavailable = "⚠️ I couldn't verify your access code right now. Please try again in a moment."

	msgTopFiveTooFew  = "⚠️ Please provide at least 5 values, separated by commas, in order of importance (1st to 5th)."
	msgNextFiveNone   = "⚠️ Please provide at least one value for positions 6-10."
	msgThanks         = "Thank you."
	msgUseReviewOnly  = "Those buttons are only active on the review screen. Please type your answer instead."
	msgNoSession      = "Type /start to create your personal values report."
	msgNothingPending = "There is nothing to cancel. Type /start to begin."

	msgCancelled = "❌ Report generation canceled. Your data has not been saved.\n\n" +
		"You can start again anytime by using the /start command."

	msgGenerating = "📊 Thank you for confirming your information!\n\n" +
		"I'm now generating your personalised values report. This may take a minute or two...\n\n" +
		"Please wait while I process your data and create your PDF report."
	msgStoreFailed    = "⚠️ There was an error storing your data. Please try again later or contact support."
	msgGenerateFailed = "⚠️ I encountered an error while generating your report. Please try again later."
	msgClosing        = "Thank you for using the Personal Values Report Bot! 🌟\n\n" +
		"If you'd like to create another report, just type /start to begin again."
)

var editPrompts = map[State]string{
	StateTopFive:    "Let's update your top 5 values in ranked order (1st to 5th).\n\n" + promptTopFive,
	StateNextFive:   "Let's update your next 5 values (positions 6-10) in no particular order.\n\nPlease enter your next 5 values, separated by commas:",
	StateAge:        "Let's update your age.\n\nPlease enter your age:",
	StateCountry:    "Let's update your country of residence.\n\nPlease enter your country:",
	StateOccupation: "Let's update your occupation.\n\nPlease enter your occupation:",
}

func promptFor(s State) string {
	switch s {
	case StateAccessCheck:
		return promptAccessCode
	case StateTopFive:
		return promptTopFive
	case StateNextFive:
		return promptNextFive
	case StateAge:
		return promptAge
	case StateCountry:
		return promptCountry
	case StateOccupation:
		return promptOccupation
	}
	return msgNoSession
}

func displayList(values []string) string {
	if len(values) == 0 {
		return "None"
	}
	return strings.Join(values, ", ")
}

func topFiveEcho(values []string) string {
	var b strings.Builder
	b.WriteString("Great! Your top 5 values in order are:\n")
	for i, v := range values {
		fmt.Fprintf(&b, "%d. %s\n", i+1, v)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func nextFiveEcho(values []string) string {
	return "Excellent! You've provided the following values for positions 6-10:\n" + displayList(values)
}

func reviewButtons() [][]Button {
	return [][]Button{
		{{Label: "Edit Top 5 Values", Action: ActionEditTopFive}, {Label: "Edit Next 5 Values", Action: ActionEditNextFive}},
		{{Label: "Edit Age", Action: ActionEditAge}, {Label: "Edit Country", Action: ActionEditCountry}, {Label: "Edit Occupation", Action: ActionEditOccupation}},
		{{Label: "✅ Confirm and Generate Report", Action: ActionConfirm}},
	}
}

func reviewMessage(s *Session) Message {
	var b strings.Builder
	b.WriteString("📋 Please review your information:\n\nTop 5 Values (ranked):\n")
	for i, v := range s.TopValues {
		fmt.Fprintf(&b, "%d. %s\n", i+1, v)
	}
	fmt.Fprintf(&b, "\nValues 6-10:\n%s\n\n", displayList(s.NextValues))
	fmt.Fprintf(&b, "Age: %d\nCountry: %s\nOccupation: %s\n\n", s.Age, s.Country, s.Occupation)
	b.WriteString("Is this information correct? If yes, I'll generate your values report.")
	return Message{Text: b.String(), Buttons: reviewButtons()}
}

func readyMessage(titles []string, link string) string {
	var b strings.Builder
	b.WriteString("✅ Your Values report is ready!\n\nHere's what's included in your report:\n")
	for _, t := range titles {
		b.WriteString("- " + t + "\n")
	}
	if link != "" {
		b.WriteString("\nYou can download it again from this link:\n" + link + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}
