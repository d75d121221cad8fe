package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/Gestion-inmobiliaria/gi-firmas/model"
	"github.com/jung-kurt/gofpdf"
)

// ContractDraft is the field set a contract document is rendered from
type ContractDraft struct {
	ContractNumber int
	Type           model.ContractType
	Amount         float64
	StartDate      time.Time
	EndDate        time.Time
	PaymentMethod  string

	PropertyAddress string
	PropertyPrice   float64
	PropertyCity    string
	PropertyZone    string

	ClientName     string
	ClientDocument string
	AgentName      string
	AgentDocument  string

	Notes string
	// CurrentDate is the document date stamp; zero means now
	CurrentDate time.Time
}

func (d *ContractDraft) stamp() time.Time {
	if d.CurrentDate.IsZero() {
		return time.Now()
	}
	return d.CurrentDate
}

// Generator renders contract documents from a typed template
type Generator struct {
	tmpl *template.Template
}

func NewGenerator() *Generator {
	return &Generator{
		tmpl: template.Must(template.New("contract").Parse(contractTemplate)),
	}
}

type contractClause struct {
	Heading string
	Body    string
}

type contractDocument struct {
	Title          string
	ContractNumber int
	City           string
	CurrentDate    string
	Clauses        []contractClause
	ClientName     string
	ClientDocument string
	AgentName      string
	AgentDocument  string
}

var contractTitles = map[model.ContractType]string{
	model.ContractTypeSale:       "DOCUMENTO PRIVADO DE COMPRAVENTA DE BIEN INMUEBLE",
	model.ContractTypePurchase:   "DOCUMENTO PRIVADO DE COMPRA DE BIEN INMUEBLE",
	model.ContractTypeAnticretic: "DOCUMENTO PRIVADO DE CONTRATO DE ANTICRÉTICO",
}

const documentDateFormat = "02/01/2006"

// buildDocument assembles the clause sections shared by the HTML and PDF
// renditions
func buildDocument(d *ContractDraft) (*contractDocument, error) {
	title, ok := contractTitles[d.Type]
	if !ok {
		return nil, fmt.Errorf("no template for contract type %q", d.Type)
	}

	city := d.PropertyCity
	if city == "" {
		city = "Santa Cruz de la Sierra"
	}

	location := d.PropertyAddress
	if d.PropertyZone != "" {
		location += ", zona " + d.PropertyZone
	}
	if d.PropertyCity != "" {
		location += ", " + d.PropertyCity
	}

	parties := fmt.Sprintf(
		"Intervienen en el presente contrato: de una parte %s, con documento de identidad N° %s, "+
			"en adelante EL CLIENTE; y de otra parte %s, con documento de identidad N° %s, "+
			"en representación de la agencia inmobiliaria, en adelante EL AGENTE.",
		d.ClientName, d.ClientDocument, d.AgentName, d.AgentDocument)

	var object string
	switch d.Type {
	case model.ContractTypeSale:
		object = fmt.Sprintf(
			"EL AGENTE transfiere en venta real y definitiva a favor de EL CLIENTE el bien inmueble "+
				"ubicado en %s, con todos sus usos, costumbres y servidumbres.", location)
	case model.ContractTypePurchase:
		object = fmt.Sprintf(
			"EL CLIENTE adquiere, por intermedio de EL AGENTE, el bien inmueble ubicado en %s, "+
				"con todos sus usos, costumbres y servidumbres.", location)
	case model.ContractTypeAnticretic:
		object = fmt.Sprintf(
			"EL CLIENTE entrega en calidad de anticrético la suma pactada a cambio del derecho de "+
				"ocupación del bien inmueble ubicado en %s, suma que será restituida a la conclusión "+
				"del presente contrato.", location)
	}

	amountWords := NumeroALetras(int64(d.Amount))
	cents := int(math.Round(d.Amount*100)) % 100
	price := fmt.Sprintf(
		"El monto pactado asciende a Bs. %.2f (%s %02d/100 BOLIVIANOS), pagaderos mediante %s.",
		d.Amount, amountWords, cents, d.PaymentMethod)
	if d.Type == model.ContractTypeAnticretic {
		price = fmt.Sprintf(
			"La suma entregada en anticrético asciende a Bs. %.2f (%s %02d/100 BOLIVIANOS), "+
				"entregada mediante %s, reembolsable en su integridad a la devolución del inmueble.",
			d.Amount, amountWords, cents, d.PaymentMethod)
	}

	term := fmt.Sprintf(
		"El presente contrato tiene vigencia desde el %s hasta el %s. La entrega del inmueble se "+
			"realizará a la suscripción del presente documento, salvo pacto en contrario.",
		d.StartDate.Format(documentDateFormat), d.EndDate.Format(documentDateFormat))

	obligations := "Ambas partes se obligan al fiel y estricto cumplimiento de cada una de las " +
		"cláusulas del presente documento, renunciando a cualquier acción que contravenga lo pactado. " +
		"EL AGENTE garantiza que el inmueble se encuentra libre de gravámenes y EL CLIENTE se obliga " +
		"al pago en la forma y plazos convenidos."

	clauses := []contractClause{
		{Heading: "PRIMERA (PARTES)", Body: parties},
		{Heading: "SEGUNDA (OBJETO)", Body: object},
		{Heading: "TERCERA (PRECIO)", Body: price},
		{Heading: "CUARTA (PLAZO Y ENTREGA)", Body: term},
		{Heading: "QUINTA (OBLIGACIONES)", Body: obligations},
	}
	if d.Notes != "" {
		clauses = append(clauses, contractClause{
			Heading: "SEXTA (CLÁUSULAS ADICIONALES)",
			Body:    d.Notes,
		})
	}

	return &contractDocument{
		Title:          title,
		ContractNumber: d.ContractNumber,
		City:           city,
		CurrentDate:    d.stamp().Format(documentDateFormat),
		Clauses:        clauses,
		ClientName:     d.ClientName,
		ClientDocument: d.ClientDocument,
		AgentName:      d.AgentName,
		AgentDocument:  d.AgentDocument,
	}, nil
}

const contractTemplate = `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>Contrato N° {{.ContractNumber}}</title>
</head>
<body>
<h1 style="text-align:center">{{.Title}}</h1>
<p>Conste por el presente documento privado N° {{.ContractNumber}}, suscrito en la ciudad de {{.City}} en fecha {{.CurrentDate}}, el contrato que al tenor de las siguientes cláusulas se regirá:</p>
{{range .Clauses}}<h2>{{.Heading}}</h2>
<p>{{.Body}}</p>
{{end}}<p>En señal de conformidad y aceptación, firman al pie del presente documento:</p>
<table style="width:100%;margin-top:60px;text-align:center">
<tr>
<td>
<p>_______________________</p>
<p>{{.ClientName}}</p>
<p>C.I. {{.ClientDocument}}</p>
<p>CLIENTE</p>
</td>
<td>
<p>_______________________</p>
<p>{{.AgentName}}</p>
<p>C.I. {{.AgentDocument}}</p>
<p>AGENTE</p>
</td>
</tr>
</table>
</body>
</html>
`

// RenderHTML produces the contract document as an HTML string
func (g *Generator) RenderHTML(d *ContractDraft) (string, error) {
	doc, err := buildDocument(d)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("render contract template: %w", err)
	}
	return buf.String(), nil
}

// HTMLToBase64 encodes an HTML document as a data URI for storage
func HTMLToBase64(html string) string {
	return "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))
}

// RenderHTMLDataURI renders the contract and encodes it for storage
func (g *Generator) RenderHTMLDataURI(d *ContractDraft) (string, error) {
	html, err := g.RenderHTML(d)
	if err != nil {
		return "", err
	}
	return HTMLToBase64(html), nil
}

// RenderPDFDataURI renders the contract as a single-page PDF data URI
func (g *Generator) RenderPDFDataURI(d *ContractDraft) (string, error) {
	doc, err := buildDocument(d)
	if err != nil {
		return "", err
	}

	pdf := gofpdf.New("P", "mm", "Letter", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(20, 18, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 13)
	pdf.MultiCell(0, 7, tr(doc.Title), "", "C", false)
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 10)
	intro := fmt.Sprintf(
		"Conste por el presente documento privado N° %d, suscrito en la ciudad de %s en fecha %s, "+
			"el contrato que al tenor de las siguientes cláusulas se regirá:",
		doc.ContractNumber, doc.City, doc.CurrentDate)
	pdf.MultiCell(0, 5, tr(intro), "", "J", false)
	pdf.Ln(2)

	for _, cl := range doc.Clauses {
		pdf.SetFont("Arial", "B", 10)
		pdf.MultiCell(0, 5, tr(cl.Heading), "", "L", false)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr(cl.Body), "", "J", false)
		pdf.Ln(2)
	}

	pdf.Ln(14)
	pdf.SetFont("Arial", "", 10)
	half := 88.0
	pdf.CellFormat(half, 5, "_______________________", "", 0, "C", false, 0, "")
	pdf.CellFormat(half, 5, "_______________________", "", 1, "C", false, 0, "")
	pdf.CellFormat(half, 5, tr(doc.ClientName), "", 0, "C", false, 0, "")
	pdf.CellFormat(half, 5, tr(doc.AgentName), "", 1, "C", false, 0, "")
	pdf.CellFormat(half, 5, tr("C.I. "+doc.ClientDocument), "", 0, "C", false, 0, "")
	pdf.CellFormat(half, 5, tr("C.I. "+doc.AgentDocument), "", 1, "C", false, 0, "")
	pdf.CellFormat(half, 5, "CLIENTE", "", 0, "C", false, 0, "")
	pdf.CellFormat(half, 5, "AGENTE", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return "", fmt.Errorf("render contract pdf: %w", err)
	}
	return "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Render produces the stored content in the requested format
func (g *Generator) Render(d *ContractDraft, format model.ContractFormat) (string, error) {
	if format == model.ContractFormatPDF {
		return g.RenderPDFDataURI(d)
	}
	return g.RenderHTMLDataURI(d)
}
