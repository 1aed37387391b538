// Package compat computes which doctors and services remain selectable given
// the current booking selection.
package compat

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
)

// Result is the filtered view of a clinic roster.
type Result struct {
	// Doctors are the eligible doctors in roster order.
	Doctors []catalog.Staff
	// Services are the services offered for the current doctor choice.
	Services []catalog.Service
}

// Filter recomputes eligible doctors and services from scratch. It is a pure
// function of its inputs.
func Filter(roster *catalog.Roster, selected []catalog.ServiceID, doctor catalog.StaffID) Result {
	if roster == nil {
		return Result{}
	}
	eligible := EligibleDoctorIDs(roster.Services, selected)

	var res Result
	for _, st := range roster.Staff {
		if eligible.Has(st.ID) {
			res.Doctors = append(res.Doctors, st)
		}
	}
	if doctor > 0 {
		res.Services = ServicesForDoctor(roster.Services, doctor)
	} else {
		res.Services = append([]catalog.Service(nil), roster.Services...)
	}
	return res
}

// EligibleDoctorIDs is the union of staff-affinity sets over the selected
// services, or over every service when nothing is selected. A doctor only
// needs to perform one of the selected services to qualify.
func EligibleDoctorIDs(services []catalog.Service, selected []catalog.ServiceID) catalog.StaffSet {
	want := make(map[catalog.ServiceID]struct{}, len(selected))
	for _, id := range selected {
		want[id] = struct{}{}
	}

	out := catalog.StaffSet{}
	for _, svc := range services {
		if len(want) > 0 {
			if _, ok := want[svc.ID]; !ok {
				continue
			}
		}
		out = out.Union(svc.Staff)
	}
	return out
}

// ServicesForDoctor keeps services whose affinity contains doctor. Services
// without any staff never match.
func ServicesForDoctor(services []catalog.Service, doctor catalog.StaffID) []catalog.Service {
	var out []catalog.Service
	for _, svc := range services {
		if svc.Staff.Has(doctor) {
			out = append(out, svc)
		}
	}
	return out
}

// Compatible reports whether doctor may be paired with the selected services.
// An absent doctor or an empty selection is always compatible.
func Compatible(services []catalog.Service, selected []catalog.ServiceID, doctor catalog.StaffID) bool {
	if doctor <= 0 || len(selected) == 0 {
		return true
	}
	return EligibleDoctorIDs(services, selected).Has(doctor)
}

// ContactLink builds the deep link used for services that cannot be booked
// online. base is a chat or contact URL such as https://wa.me/201000000000.
func ContactLink(base string, clinic catalog.Clinic, svc catalog.Service) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	text := fmt.Sprintf("I would like to book %s", svc.Name)
	if clinic.Name != "" {
		text += fmt.Sprintf(" at %s", clinic.Name)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "text=" + url.QueryEscape(text)
}
