package report

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"

	"github.com/shouni/go-listing-watch/pkg/types"
)

var htmlFuncs = template.FuncMap{
	"price": func(v float64) string {
		if math.IsNaN(v) {
			return ""
		}
		return fmt.Sprintf("%.0f", v)
	},
	"prev": func(c types.ChangeRecord) string {
		if c.PreviousPrice == nil || math.IsNaN(*c.PreviousPrice) {
			return ""
		}
		return fmt.Sprintf("%.0f", *c.PreviousPrice)
	},
	"isUp":   func(c types.ChangeRecord) bool { return c.Classification == types.ClassUp },
	"isDown": func(c types.ChangeRecord) bool { return c.Classification == types.ClassDown },
	"delta": func(c types.ChangeRecord) template.HTML {
		return template.HTML(fmt.Sprintf("%+.0f€", c.Delta))
	},
	"photo": func(u string) bool {
		return strings.HasPrefix(u, "http")
	},
}

var pageTemplate = template.Must(template.New("index").Funcs(htmlFuncs).Parse(`<!doctype html><html lang="pt"><head>
<meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui,-apple-system,Segoe UI,Roboto,Arial,sans-serif; margin:2rem; }
h1 { font-size:1.6rem; margin-bottom:.25rem; }
p.meta { color:#555; margin-top:0; }
.badge { display:inline-block; padding:2px 6px; border-radius:4px; font-size:.8rem; }
.badge.up { background:#e6ffed; border:1px solid #34d058; color:#22863a; }
.badge.down { background:#ffeef0; border:1px solid #d73a49; color:#86181d; }
.dataframe img { max-width: 140px; height: auto; display:block; }
table.dataframe { border-collapse: collapse; width: 100%; }
table.dataframe th, table.dataframe td { border:1px solid #ddd; padding:8px; vertical-align:top; }
table.dataframe th { cursor:pointer; background:#f3f3f3; }
tr:nth-child(even) { background:#fafafa; }
.small { font-size:.9rem; }
</style>
</head><body>
<h1>{{.Title}}</h1>
<p class="meta small">Atualizado em: <span id="ts" data-ts="{{.GeneratedAt.Format "2006-01-02T15:04:05Z07:00"}}"></span>
 · {{.Summary.Total}} imóveis · ↑ {{.Summary.Ups}} · ↓ {{.Summary.Downs}} · novos {{.Summary.News}}</p>
<table class="dataframe">
<thead><tr><th>photo</th><th>source</th><th>title</th><th>price_eur</th><th>price_change</th><th>location</th><th>typology</th><th>details</th><th>url</th><th>prev_price</th></tr></thead>
<tbody>
{{- range .Items}}
<tr>
<td>{{if photo .ImageURL}}<img src="{{.ImageURL}}" alt="foto">{{end}}</td>
<td>{{.Source}}</td>
<td>{{if .URL}}<a href="{{.URL}}" target="_blank" rel="noopener">{{.Title}}</a>{{else}}{{.Title}}{{end}}</td>
<td>{{price .Price}}</td>
<td>{{if isUp .Change}}<span class="badge up">↑ {{delta .Change}}</span>{{else if isDown .Change}}<span class="badge down">↓ {{delta .Change}}</span>{{end}}</td>
<td>{{.Location}}</td>
<td>{{.Typology}}</td>
<td>{{.Details}}</td>
<td>{{.URL}}</td>
<td>{{prev .Change}}</td>
</tr>
{{- end}}
</tbody>
</table>
<script>
(function(){var el=document.getElementById('ts');el.textContent=new Date(el.getAttribute('data-ts')).toLocaleString('pt-PT');})();
function sortTable(table, col, reverse) {
  var tb = table.tBodies[0], tr = Array.prototype.slice.call(tb.rows, 0), i;
  reverse = -((+reverse) || -1);
  tr = tr.sort(function(a,b){return reverse*(a.cells[col].textContent.trim().localeCompare(b.cells[col].textContent.trim(),'pt',{numeric:true}));});
  for(i=0;i<tr.length;++i) tb.appendChild(tr[i]);
}
(function(){var t=document.getElementsByClassName('dataframe');if(!t.length)return;var table=t[0];var ths=table.tHead?table.tHead.rows[0].cells:[];for(let i=0;i<ths.length;i++){ths[i].addEventListener('click',function(){var asc=this.getAttribute('data-asc')!=='true';sortTable(table,i,!asc);this.setAttribute('data-asc',asc?'true':'false');});}})();
</script>
</body></html>
`))

// WriteHTML は並べ替え可能な一覧ページを書き出します。
func WriteHTML(w io.Writer, doc Document) error {
	if doc.Title == "" {
		doc.Title = DefaultTitle
	}
	if err := pageTemplate.Execute(w, doc); err != nil {
		return fmt.Errorf("HTMLの生成に失敗しました: %w", err)
	}
	return nil
}
