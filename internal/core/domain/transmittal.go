package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

type TransmittalStatus string

const (
	TransmittalNew         TransmittalStatus = "new"
	TransmittalInvalid     TransmittalStatus = "invalid"
	TransmittalToBeChecked TransmittalStatus = "tobechecked"
	TransmittalRejected    TransmittalStatus = "rejected"
	TransmittalProcessing  TransmittalStatus = "processing"
	TransmittalAccepted    TransmittalStatus = "accepted"
)

const (
	PurposeForReview      = "for review"
	PurposeForInformation = "for information"
)

var transmittalKeyRe = regexp.MustCompile(`^([A-Za-z0-9]+)-([A-Za-z0-9]+)-([A-Za-z0-9]+)-TRS-(\d{5})$`)

// TransmittalKeyParts are the components of CONTRACT-ORIGINATOR-RECIPIENT-TRS-NNNNN.
type TransmittalKeyParts struct {
	Contract         string
	Originator       string
	Recipient        string
	SequentialNumber int
}

func (p TransmittalKeyParts) String() string {
	return TransmittalKey(p.Contract, p.Originator, p.Recipient, p.SequentialNumber)
}

func TransmittalKey(contract, originator, recipient string, seq int) string {
	return fmt.Sprintf("%s-%s-%s-TRS-%05d", contract, originator, recipient, seq)
}

// ParseTransmittalKey splits a transmittal directory name.
func ParseTransmittalKey(name string) (TransmittalKeyParts, error) {
	m := transmittalKeyRe.FindStringSubmatch(name)
	if m == nil {
		return TransmittalKeyParts{}, WrapError(ErrInvalidInput, "parse transmittal key", fmt.Errorf("%q does not match CONTRACT-ORIGINATOR-RECIPIENT-TRS-NNNNN", name))
	}
	seq, err := strconv.Atoi(m[4])
	if err != nil {
		return TransmittalKeyParts{}, WrapError(ErrInvalidInput, "parse transmittal key", err)
	}
	return TransmittalKeyParts{Contract: m[1], Originator: m[2], Recipient: m[3], SequentialNumber: seq}, nil
}

// Transmittal is an incoming batch submission.
type Transmittal struct {
	ID               string            `json:"id"`
	DocumentKey      string            `json:"document_key"`
	Category         string            `json:"category"`
	Contract         string            `json:"contract"`
	Originator       string            `json:"originator"`
	Recipient        string            `json:"recipient"`
	SequentialNumber int               `json:"sequential_number"`
	Status           TransmittalStatus `json:"status"`
	TransmittalDate  time.Time         `json:"transmittal_date"`
	RejectedOn       *time.Time        `json:"rejected_on,omitempty"`
	CreatedOn        time.Time         `json:"created_on"`
	UpdatedOn        time.Time         `json:"updated_on"`
}

// Basename is the directory name the transmittal was imported from.
func (t *Transmittal) Basename() string {
	return TransmittalKey(t.Contract, t.Originator, t.Recipient, t.SequentialNumber)
}

// TrsRevision stages one imported CSV line until the transmittal is processed.
type TrsRevision struct {
	ID            string            `json:"id"`
	TransmittalID string            `json:"transmittal_id"`
	LineNumber    int               `json:"line_number"`
	DocumentKey   string            `json:"document_key"`
	Title         string            `json:"title"`
	Revision      int               `json:"revision"`
	Status        string            `json:"status"`
	Category      string            `json:"category"`
	Fields        map[string]string `json:"fields"`
	PDFFile       string            `json:"pdf_file"`
	NativeFile    string            `json:"native_file,omitempty"`
	PageCount     int               `json:"page_count"`
	IsNewRevision bool              `json:"is_new_revision"`
	Accepted      *bool             `json:"accepted,omitempty"`
	Comment       string            `json:"comment,omitempty"`
	DocumentID    string            `json:"document_id,omitempty"`
	CreatedOn     time.Time         `json:"created_on"`
}

// Refused reports whether a checker explicitly refused the line.
func (r *TrsRevision) Refused() bool {
	return r.Accepted != nil && !*r.Accepted
}

// OutgoingTransmittal is a batch of reviewed revisions sent to a recipient.
type OutgoingTransmittal struct {
	ID               string             `json:"id"`
	DocumentKey      string             `json:"document_key"`
	Category         string             `json:"category"`
	Contract         string             `json:"contract"`
	Originator       string             `json:"originator"`
	Recipient        string             `json:"recipient"`
	SequentialNumber int                `json:"sequential_number"`
	PurposeOfIssue   string             `json:"purpose_of_issue"`
	TransmittalDate  time.Time          `json:"transmittal_date"`
	Revisions        []ExportedRevision `json:"revisions"`
	CreatedOn        time.Time          `json:"created_on"`
}

// ExportedRevision freezes a revision as it was when transmitted.
type ExportedRevision struct {
	ID            string `json:"id"`
	TransmittalID string `json:"transmittal_id"`
	DocumentID    string `json:"document_id"`
	DocumentKey   string `json:"document_key"`
	Revision      int    `json:"revision"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	ReturnCode    string `json:"return_code,omitempty"`
}
