package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caixa/backend/internal/domain"
	"caixa/backend/internal/ledger"
)

var brt = time.FixedZone("BRT", -3*60*60)

func sampleReport(t *testing.T) domain.ClosingReport {
	t.Helper()
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, brt)
	sales := []domain.Sale{
		{ID: 1, Product: "Ração 10kg", Amount: decimal.RequireFromString("120.00"), PaymentMethod: domain.PaymentPix, CreatedAt: day.Add(9 * time.Hour)},
		{
			ID: 2, Product: "Ração 5kg", Amount: decimal.RequireFromString("60.00"), PaymentMethod: domain.PaymentDinheiro,
			Tendered: decimal.RequireFromString("100.00"), Change: decimal.RequireFromString("40.00"), CreatedAt: day.Add(10 * time.Hour),
		},
	}
	expenses := []domain.Expense{
		{ID: 1, Description: "Frete, entrega", Amount: decimal.RequireFromString("12.50"), CreatedAt: day.Add(11 * time.Hour)},
	}
	return ledger.Aggregate(day, sales, expenses)
}

func TestFileNameIsDerivedFromDate(t *testing.T) {
	assert.Equal(t, "fechamento_2024-03-15.pdf", FileName("2024-03-15", FormatPDF))
	assert.Equal(t, "fechamento_2024-03-15.csv", FileName("2024-03-15", FormatCSV))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	f, err = ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("xlsx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestPDFRenderingIsByteIdentical(t *testing.T) {
	emitter := NewEmitter("Rações Trovão", brt, nil)
	report := sampleReport(t)

	first, err := emitter.Render(report, FormatPDF)
	require.NoError(t, err)
	second, err := emitter.Render(report, FormatPDF)
	require.NoError(t, err)

	assert.Equal(t, "fechamento_2024-03-15.pdf", first.Name)
	assert.Equal(t, "application/pdf", first.ContentType)
	assert.True(t, bytes.HasPrefix(first.Body, []byte("%PDF-")))
	assert.True(t, bytes.Equal(first.Body, second.Body), "re-rendering the same report must give identical bytes")
}

func TestPDFRenderingDoesNotMutateReport(t *testing.T) {
	emitter := NewEmitter("Rações Trovão", brt, nil)
	report := sampleReport(t)
	before := report.TotalSales.String()
	firstID := report.Sales[0].ID

	_, err := emitter.Render(report, FormatPDF)
	require.NoError(t, err)

	assert.Equal(t, before, report.TotalSales.String())
	assert.Equal(t, firstID, report.Sales[0].ID)
}

func TestEmptyDayStillRenders(t *testing.T) {
	emitter := NewEmitter("Rações Trovão", brt, nil)
	empty := ledger.Aggregate(time.Date(2024, 3, 16, 0, 0, 0, 0, brt), nil, nil)

	pdf, err := emitter.Render(empty, FormatPDF)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf.Body)

	out, err := emitter.Render(empty, FormatCSV)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(out.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 8, "header plus seven summary rows")
	assert.Equal(t, []string{"resumo", "", "2024-03-16", "saldo", "", "0.00", "", ""}, rows[7])
}

func TestCSVRowsAndSummary(t *testing.T) {
	emitter := NewEmitter("Rações Trovão", brt, nil)

	out, err := emitter.Render(sampleReport(t), FormatCSV)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(out.Body)).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 1+2+1+7)
	assert.Equal(t, []string{"venda", "2", "2024-03-15 10:00:00", "Ração 5kg", "dinheiro", "60.00", "100.00", "40.00"}, rows[1])
	assert.Equal(t, "Frete, entrega", rows[3][3])

	summary := map[string]string{}
	for _, row := range rows[4:] {
		summary[row[3]] = row[5]
	}
	assert.Equal(t, "180.00", summary["total_vendas"])
	assert.Equal(t, "120.00", summary["pix"])
	assert.Equal(t, "12.50", summary["total_gastos"])
	assert.Equal(t, "167.50", summary["saldo"])
}

func TestDirSinkOverwritesSameDay(t *testing.T) {
	dir := t.TempDir()
	emitter := NewEmitter("Rações Trovão", brt, DirSink{Dir: dir})
	report := sampleReport(t)

	first, err := emitter.Emit(context.Background(), report, FormatPDF)
	require.NoError(t, err)
	second, err := emitter.Emit(context.Background(), report, FormatPDF)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "fechamento_2024-03-15.pdf"), first.Location)
	assert.Equal(t, first.Location, second.Location)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")

	onDisk, err := os.ReadFile(first.Location)
	require.NoError(t, err)
	assert.Equal(t, first.Body, onDisk)
}

func TestDirSinkRejectsPaths(t *testing.T) {
	_, err := DirSink{Dir: t.TempDir()}.Put(context.Background(), "../escape.pdf", "application/pdf", []byte("x"))
	assert.Error(t, err)
}

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(params.Body); err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, buf.Bytes())
	return &s3.PutObjectOutput{}, nil
}

func TestS3SinkUsesDeterministicKey(t *testing.T) {
	client := &fakeS3{}
	emitter := NewEmitter("Rações Trovão", brt, NewS3SinkWithClient(client, "caixa-reports", "/fechamentos/"))

	artifact, err := emitter.Emit(context.Background(), sampleReport(t), FormatCSV)
	require.NoError(t, err)

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "caixa-reports", aws.ToString(client.inputs[0].Bucket))
	assert.Equal(t, "fechamentos/fechamento_2024-03-15.csv", aws.ToString(client.inputs[0].Key))
	assert.Equal(t, "text/csv; charset=utf-8", aws.ToString(client.inputs[0].ContentType))
	assert.Equal(t, artifact.Body, client.bodies[0])
	assert.Equal(t, "s3://caixa-reports/fechamentos/fechamento_2024-03-15.csv", artifact.Location)
}
