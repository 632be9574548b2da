package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/chronopact/internal/ledger"
)

const timeLayout = "2006-01-02 15:04"

func mention(userID string) string {
	return "<@" + userID + ">"
}

func mentionList(userIDs []string) string {
	if len(userIDs) == 0 {
		return "None yet"
	}
	parts := make([]string, len(userIDs))
	for i, id := range userIDs {
		parts[i] = mention(id)
	}
	return strings.Join(parts, ", ")
}

func rosterMessage(r rosterChange) Message {
	return Message{
		Title: "Appointment",
		Fields: []MessageField{
			{Name: "Activity", Value: r.activity, Inline: true},
			{Name: "Party Size", Value: fmt.Sprintf("%d/%d", len(r.participants), r.capacity), Inline: true},
			{Name: "Time", Value: r.scheduledAt.Format(timeLayout), Inline: true},
			{Name: "Participants", Value: mentionList(r.participants)},
		},
	}
}

func goTimeMessage(out fireOutcome) Message {
	return Message{
		Title:    "Time to play " + out.activity,
		Content:  fmt.Sprintf("%s it's time! Head to the gathering point.", mentionList(out.participants)),
		Mentions: out.participants,
	}
}

func notFullMessage(activity string, participants []string) Message {
	return Message{
		Title:    "Appointment cancelled",
		Content:  fmt.Sprintf("%s was cancelled: the party was not full at start time.", activity),
		Mentions: participants,
	}
}

func silenceMessage(activity string) Message {
	return Message{
		Title:   "Appointment cancelled",
		Content: fmt.Sprintf("%s was cancelled: nobody joined.", activity),
	}
}

func calledOffMessage(out cancelOutcome, requester string) Message {
	msg := Message{
		Title:    "Appointment cancelled",
		Content:  fmt.Sprintf("%s was called off by %s.", out.activity, mention(requester)),
		Mentions: out.participants,
	}
	for _, d := range out.deltas {
		msg.Fields = append(msg.Fields, MessageField{
			Name:  "No-show",
			Value: fmt.Sprintf("%s wasted %d min", mention(d.UserID), d.WastedMinutes),
		})
	}
	return msg
}

func completionMessage(activity string, deltas []ledger.Delta) Message {
	ranked := ledger.Rank(deltas)
	msg := Message{Title: "Everyone showed up for " + activity}
	for i, d := range ranked {
		msg.Fields = append(msg.Fields, MessageField{
			Name:  fmt.Sprintf("#%d", i+1),
			Value: fmt.Sprintf("%s late %s, wasted %d min, waited %d min", mention(d.UserID), lateLabel(d), d.WastedMinutes, d.WaitingMinutes),
		})
		msg.Mentions = append(msg.Mentions, d.UserID)
	}
	return msg
}

func lateLabel(d ledger.Delta) string {
	if d.Absent() {
		return "never"
	}
	return fmt.Sprintf("%d min", d.LateMinutes)
}

func shameMessage(userID string, threshold int, text string) Message {
	return Message{
		Content:  fmt.Sprintf("%s (%d min late) %s", mention(userID), threshold, text),
		Mentions: []string{userID},
	}
}

func fallbackInsult(input InsultContext) string {
	return fmt.Sprintf("%s, everyone has been waiting %d minutes. Show up.", strings.Join(input.SubjectNames, ", "), input.ElapsedMinutes)
}

func harassmentStartMessage(s HarassmentSnapshot) Message {
	return Message{
		Title:    "Harassment started",
		Content:  fmt.Sprintf("%s is late. Reminders every %d min until they arrive.", mention(s.TargetID), s.IntervalMinutes),
		Mentions: []string{s.TargetID},
	}
}

func insultMessage(target string, elapsed int, text string) Message {
	return Message{
		Content:  fmt.Sprintf("%s (%d min) %s", mention(target), elapsed, text),
		Mentions: []string{target},
	}
}

func harassmentClosingMessage(s HarassmentSnapshot, deltas []ledger.Delta) Message {
	total := 0
	minutes := 0
	if len(deltas) > 0 {
		total = deltas[0].WastedMinutes
		minutes = deltas[0].LateMinutes
	}
	reason := "arrived"
	if s.EndReason == EndReasonGivenUp {
		reason = "was given up on"
	}
	end := s.StartedAt
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return Message{
		Title:   "Harassment ended",
		Content: fmt.Sprintf("%s %s after %d min.", mention(s.TargetID), reason, minutes),
		Fields: []MessageField{
			{Name: "Waiting users", Value: fmt.Sprintf("%d", len(s.WaitingUserIDs)), Inline: true},
			{Name: "Total wasted", Value: fmt.Sprintf("%d min", total), Inline: true},
			{Name: "Ended", Value: end.Format(time.Kitchen), Inline: true},
		},
		Mentions: append([]string{s.TargetID}, s.WaitingUserIDs...),
	}
}
