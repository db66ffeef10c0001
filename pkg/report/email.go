package report

import (
	"fmt"
	"io"
	"text/template"
)

var emailTemplate = template.Must(template.New("email").Parse(`Resumo diário — Serra da Estrela

Imóveis encontrados: {{.Summary.Total}}
Subidas de preço: {{.Summary.Ups}}
Descidas de preço: {{.Summary.Downs}}
Novos imóveis: {{.Summary.News}}
{{- if .SiteURL}}

Lista completa (com imagens e detalhes):
{{.SiteURL}}
{{- end}}
`))

// WriteEmail は通知メール本文用の短い要約を書き出します。
func WriteEmail(w io.Writer, doc Document) error {
	if err := emailTemplate.Execute(w, doc); err != nil {
		return fmt.Errorf("通知テキストの生成に失敗しました: %w", err)
	}
	return nil
}
