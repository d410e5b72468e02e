// Package report renders a closing report into a downloadable artifact and
// hands it to a sink. Rendering is deterministic: the same report always
// yields the same bytes and the same file name.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"caixa/backend/internal/domain"
)

type Format string

const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

var ErrUnsupportedFormat = errors.New("unsupported report format")

// ParseFormat defaults to PDF when raw is empty.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", ErrUnsupportedFormat
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/pdf"
}

// FileName is fechamento_<YYYY-MM-DD>.<ext>, derived only from the day.
func FileName(date string, format Format) string {
	return fmt.Sprintf("fechamento_%s.%s", date, format)
}

type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
	// Location is where the sink stored the artifact; empty for DiscardSink.
	Location string
}

type Emitter struct {
	business string
	loc      *time.Location
	sink     Sink
}

func NewEmitter(business string, loc *time.Location, sink Sink) *Emitter {
	if loc == nil {
		loc = time.UTC
	}
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Emitter{business: business, loc: loc, sink: sink}
}

// Render produces the artifact without storing it.
func (e *Emitter) Render(report domain.ClosingReport, format Format) (Artifact, error) {
	var (
		body []byte
		err  error
	)
	switch format {
	case FormatPDF:
		body, err = renderPDF(report, e.business, e.loc)
	case FormatCSV:
		body, err = renderCSV(report, e.loc)
	default:
		return Artifact{}, ErrUnsupportedFormat
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("render %s: %w", format, err)
	}
	return Artifact{
		Name:        FileName(report.Date, format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

// Emit renders and stores the artifact, replacing any earlier one for the
// same day and format.
func (e *Emitter) Emit(ctx context.Context, report domain.ClosingReport, format Format) (Artifact, error) {
	artifact, err := e.Render(report, format)
	if err != nil {
		return Artifact{}, err
	}
	location, err := e.sink.Put(ctx, artifact.Name, artifact.ContentType, artifact.Body)
	if err != nil {
		return Artifact{}, fmt.Errorf("store %s: %w", artifact.Name, err)
	}
	artifact.Location = location
	return artifact, nil
}
