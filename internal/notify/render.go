package notify

import (
	"fmt"
	"strings"
	"time"

	"courtbook/internal/models"
)

const timeLayout = "Mon 02 Jan 2006 15:04"

// Render builds the subject and body of a notice.
func Render(kind string, data models.NotificationData, loc *time.Location) (string, string) {
	if loc == nil {
		loc = time.UTC
	}
	court := data.ResourceName
	if court == "" {
		court = "your court"
	}
	when := fmt.Sprintf("%s - %s", data.StartTime.In(loc).Format(timeLayout), data.EndTime.In(loc).Format("15:04"))

	var b strings.Builder
	switch kind {
	case models.NotificationReservationConfirmation:
		fmt.Fprintf(&b, "Reservation #%d for %s is confirmed.\n", data.ReservationID, court)
		fmt.Fprintf(&b, "When: %s\n", when)
		return "Reservation confirmed", b.String()
	case models.NotificationPaymentConfirmation:
		fmt.Fprintf(&b, "We received %s for reservation #%d.\n", models.FormatMinor(data.Amount, data.Currency), data.ReservationID)
		if data.GatewayRef != "" {
			fmt.Fprintf(&b, "Reference: %s\n", data.GatewayRef)
		}
		return "Payment received", b.String()
	case models.NotificationCancellation:
		fmt.Fprintf(&b, "Reservation #%d for %s has been cancelled.\n", data.ReservationID, court)
		fmt.Fprintf(&b, "When: %s\n", when)
		return "Reservation cancelled", b.String()
	default:
		fmt.Fprintf(&b, "Update on reservation #%d.\n", data.ReservationID)
		return "Reservation update", b.String()
	}
}
