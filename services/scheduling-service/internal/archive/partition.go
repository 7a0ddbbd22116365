// Package archive splits appointments into the two staff views: the
// operational queue of upcoming work and the historical record. The split is
// a pure function of status and is recomputed on demand, never stored.
package archive

import (
	"sort"
	"strings"
	"time"

	"github.com/omerkatz/dentsched/services/scheduling-service/internal/model"
)

// Partition returns the active set (pending, confirmed, arrived) and the
// archived set (completed, cancelled, no_show). Input order is preserved.
func Partition(appts []model.Appointment) (active, archived []model.Appointment) {
	for _, appt := range appts {
		if appt.Status.Active() {
			active = append(active, appt)
		} else {
			archived = append(archived, appt)
		}
	}
	return active, archived
}

// Query narrows a staff view. Zero values match everything.
type Query struct {
	From      time.Time // inclusive slot date lower bound
	To        time.Time // inclusive slot date upper bound
	Status    model.Status
	Hour      int // slot hour 0-23; -1 or out of range means any
	Search    string
	Treatment string
}

// Filter applies q and returns the matches sorted by (date, time). Search
// matches a case-insensitive substring of the patient name or the phone
// number.
func Filter(appts []model.Appointment, q Query) []model.Appointment {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	var out []model.Appointment
	for _, appt := range appts {
		if !q.From.IsZero() && dayBefore(appt.Date, q.From) {
			continue
		}
		if !q.To.IsZero() && dayBefore(q.To, appt.Date) {
			continue
		}
		if q.Status != "" && appt.Status != q.Status {
			continue
		}
		if q.Hour >= 0 && q.Hour <= 23 && appt.SlotTime.Hour() != q.Hour {
			continue
		}
		if q.Treatment != "" && appt.TreatmentSlug != q.Treatment {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(appt.PatientName), search) &&
			!strings.Contains(appt.Phone, search) {
			continue
		}
		out = append(out, appt)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].SlotTime < out[j].SlotTime
	})
	return out
}

func dayBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
