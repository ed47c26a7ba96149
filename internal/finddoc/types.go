// Package finddoc contains the FindDoc user/provider service client and wire types.
package finddoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID accepts both string and numeric identifiers on the wire and always
// re-encodes as a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("finddoc: invalid id %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Provider is a search result from the provider service.
type Provider struct {
	ID          ID
	FirstName   string
	LastName    string
	FullAddress string
	Phone       string
}

type providerProperties struct {
	FirstName   string `json:"Provider First Name"`
	LastName    string `json:"Provider Last Name"`
	FullAddress string `json:"Full Address"`
	Phone       string `json:"Telephone Number"`
}

type providerWire struct {
	ID         ID                 `json:"_id"`
	Properties providerProperties `json:"properties"`
}

// UnmarshalJSON decodes the provider service's
// {_id, properties: {"Provider First Name", ...}} shape.
func (p *Provider) UnmarshalJSON(data []byte) error {
	var w providerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Provider{
		ID:          w.ID,
		FirstName:   w.Properties.FirstName,
		LastName:    w.Properties.LastName,
		FullAddress: w.Properties.FullAddress,
		Phone:       w.Properties.Phone,
	}
	return nil
}

// MarshalJSON writes the same shape UnmarshalJSON reads so session snapshots
// round-trip.
func (p Provider) MarshalJSON() ([]byte, error) {
	return json.Marshal(providerWire{
		ID: p.ID,
		Properties: providerProperties{
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			FullAddress: p.FullAddress,
			Phone:       p.Phone,
		},
	})
}

// DisplayName is "First Last", trimmed when either part is missing.
func (p Provider) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Appointment is one of the user's booked appointments.
type Appointment struct {
	ID            ID     `json:"id"`
	ProviderID    ID     `json:"provider_id"`
	StartDatetime string `json:"start_datetime"`
	Reason        string `json:"reason,omitempty"`
}

// Slot is a single schedule entry for a provider.
type Slot struct {
	StartDatetime string `json:"start_datetime"`
	IsBooked      bool   `json:"is_booked"`
}

// Schedule is a provider's schedule as returned by the user service.
type Schedule struct {
	Availability []Slot `json:"availability"`
}

// SearchRequest holds provider search criteria.
type SearchRequest struct {
	Specialty string `json:"specialty"`
	Insurance string `json:"insurance"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Radius    int    `json:"radius"`
}

// BookingRequest is the payload for creating an appointment.
type BookingRequest struct {
	ProviderID        ID     `json:"provider_id"`
	ProviderFirstName string `json:"provider_first_name"`
	ProviderLastName  string `json:"provider_last_name"`
	StartDatetime     string `json:"start_datetime"`
	Reason            string `json:"reason"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type userResponse struct {
	Appointments []Appointment `json:"appointments"`
}
