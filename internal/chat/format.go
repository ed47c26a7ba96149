package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/finddoc-chatbot/internal/finddoc"
)

// Display caps for the lists shown to the user.
const (
	MaxProviders    = 5
	MaxAppointments = 10
	MaxSlots        = 7
)

const (
	noProvidersText    = "No providers found."
	noAppointmentsText = "No appointments found."
	noSlotsText        = "No available slots found."
	invalidDateText    = "Invalid date format"
	unknownProvider    = "Unknown provider"
	notAvailable       = "N/A"
)

const displayLayout = "01/02/2006, 03:04 PM"

// ISO-8601 variants the backend has been seen to send.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// FormatDatetime renders an ISO-8601 timestamp as "MM/DD/YYYY, hh:mm AM".
// The wall clock of the input is kept; no zone conversion happens.
func FormatDatetime(value string) string {
	value = strings.TrimSpace(value)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(displayLayout)
		}
	}
	return invalidDateText
}

// FormatProviders lists up to MaxProviders providers, 1-indexed.
func FormatProviders(providers []finddoc.Provider) string {
	providers = capList(providers, MaxProviders)
	if len(providers) == 0 {
		return noProvidersText
	}
	lines := make([]string, 0, len(providers))
	for i, p := range providers {
		lines = append(lines, fmt.Sprintf("%d. Name: %s %s, \nAddress: %s, \nPhone: %s \n",
			i+1, orNA(p.FirstName), orNA(p.LastName), orNA(p.FullAddress), orNA(p.Phone)))
	}
	return strings.Join(lines, "\n")
}

// FormatAppointments lists up to MaxAppointments appointments, 1-indexed.
// providerNames[i] is the display name for appointments[i]; blank or missing
// names render as "Unknown provider".
func FormatAppointments(appointments []finddoc.Appointment, providerNames []string) string {
	appointments = capList(appointments, MaxAppointments)
	if len(appointments) == 0 {
		return noAppointmentsText
	}
	lines := make([]string, 0, len(appointments))
	for i, apt := range appointments {
		name := unknownProvider
		if i < len(providerNames) && strings.TrimSpace(providerNames[i]) != "" {
			name = providerNames[i]
		}
		lines = append(lines, fmt.Sprintf("\n%d. Provider: %s, \nDate: %s, \nReason: %s",
			i+1, name, FormatDatetime(apt.StartDatetime), orNA(apt.Reason)))
	}
	return strings.Join(lines, "\n")
}

// FormatSchedule lists up to MaxSlots unbooked slots, 1-indexed over the
// unbooked slots only.
func FormatSchedule(availability []finddoc.Slot) string {
	open := OpenSlots(availability)
	if len(open) == 0 {
		return noSlotsText
	}
	lines := make([]string, 0, len(open))
	for i, slot := range open {
		lines = append(lines, fmt.Sprintf("\n %d. %s", i+1, FormatDatetime(slot.StartDatetime)))
	}
	return "Available times:\n" + strings.Join(lines, "\n")
}

// OpenSlots returns the first MaxSlots unbooked slots in schedule order.
// This is the list slot indices refer to.
func OpenSlots(availability []finddoc.Slot) []finddoc.Slot {
	open := make([]finddoc.Slot, 0, MaxSlots)
	for _, slot := range availability {
		if slot.IsBooked {
			continue
		}
		open = append(open, slot)
		if len(open) == MaxSlots {
			break
		}
	}
	return open
}

func capList[T any](items []T, max int) []T {
	if len(items) > max {
		return items[:max]
	}
	return items
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
