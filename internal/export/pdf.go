package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/neuro-mcq/backend/internal/explanation"
	"github.com/neuro-mcq/backend/internal/models"
)

const maxExplanationRunes = 1500

// Block is the printable form of one MCQ.
type Block struct {
	Heading     string
	Meta        string
	Question    string
	Options     []string
	Answer      string
	Explanation string
}

// NewBlock flattens an MCQ for printing. n is the 1-based position in the
// export.
func NewBlock(n int, m *models.MCQ) Block {
	b := Block{
		Heading:  fmt.Sprintf("Question %d", n),
		Question: strings.TrimSpace(m.QuestionText),
	}
	if m.QuestionNumber != "" {
		b.Heading += " (#" + m.QuestionNumber + ")"
	}

	var meta []string
	if m.Subspecialty != "" {
		meta = append(meta, m.Subspecialty)
	}
	if exam := strings.TrimSpace(string(m.ExamType) + " " + m.ExamYear); exam != "" {
		meta = append(meta, exam)
	}
	b.Meta = strings.Join(meta, " | ")

	for _, opt := range m.Options {
		b.Options = append(b.Options, fmt.Sprintf("%s. %s", opt.Letter, opt.Text))
	}

	b.Answer = "Answer: " + strings.Join(m.CorrectLetters(), ", ")
	if text := m.AnswerText(); text != "" {
		b.Answer += " (" + text + ")"
	}

	expl := explanation.StripHTML(explanation.Text(m))
	if r := []rune(expl); len(r) > maxExplanationRunes {
		expl = string(r[:maxExplanationRunes]) + "..."
	}
	b.Explanation = expl
	return b
}

// WritePDF renders mcqs as an A4 question book with page numbers.
func WritePDF(w io.Writer, title string, mcqs []models.MCQ) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, tr(title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d questions | exported %s", len(mcqs), time.Now().UTC().Format("2006-01-02")), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	if len(mcqs) == 0 {
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 8, "No questions matched this export.", "", 1, "C", false, 0, "")
	}

	for i := range mcqs {
		b := NewBlock(i+1, &mcqs[i])

		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 7, tr(b.Heading), "", 1, "L", false, 0, "")
		if b.Meta != "" {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(0, 5, tr(b.Meta), "", 1, "L", false, 0, "")
		}

		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(b.Question), "", "L", false)
		pdf.Ln(1)
		for _, opt := range b.Options {
			pdf.MultiCell(0, 6, tr("    "+opt), "", "L", false)
		}

		pdf.Ln(1)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 6, tr(b.Answer), "", "L", false)
		if b.Explanation != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 5, tr(b.Explanation), "", "L", false)
		}
		pdf.Ln(5)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}
