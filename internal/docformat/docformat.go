// Package docformat defines the closed set of export output formats.
package docformat

import "fmt"

type Format string

const (
	Docx Format = "docx"
	Odt  Format = "odt"
	Pdf  Format = "pdf"
)

// Native is the format the renderer produces directly; everything else goes
// through the format converter.
const Native = Docx

// Parse validates a requested output format.
func Parse(s string) (Format, error) {
	switch f := Format(s); f {
	case Docx, Odt, Pdf:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %q", s)
	}
}

func (f Format) String() string { return string(f) }

// Ext returns the file extension without the dot.
func (f Format) Ext() string { return string(f) }

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case Docx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case Odt:
		return "application/vnd.oasis.opendocument.text"
	case Pdf:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
