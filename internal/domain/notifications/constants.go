package notifications

const (
	TypeReminderSent          = "reminder_sent"
	TypeExpiryDigest          = "expiry_digest"
	TypeDocumentSubmitted     = "document_submitted"
	TypeDocumentApproved      = "document_approved"
	TypeDocumentRejected      = "document_rejected"
	TypeAnnouncementPublished = "announcement_published"
	TypeTicketReply           = "ticket_reply"
	TypeTicketStatusChanged   = "ticket_status_changed"
)
