package source

// agencySelectors は、不動産会社サイトで共通のカード構造です。
func agencySelectors(price ...string) Selectors {
	return Selectors{
		Card:     []string{"div.property", "div.card", "article"},
		Link:     []string{"a"},
		Price:    price,
		Location: []string{".property-location", ".location"},
		Details:  []string{".property-description", "p"},
	}
}

// Builtin は組み込みソースの定義を優先順で返します。呼び出すたびに新しいコピーを返します。
func Builtin() []Definition {
	return []Definition{
		{
			ID:      "idealista",
			BaseURL: "https://www.idealista.pt",
			SearchURL: "https://www.idealista.pt/comprar-casas/covilha/" +
				"{{if .MaxPrice}}com-preco-max_{{.MaxPrice}}/{{end}}tipo-moradia/" +
				"{{if ge .MinBedrooms 2}}t{{.MinBedrooms}}/{{end}}" +
				"{{if gt .Page 1}}pag-{{.Page}}.htm{{end}}",
			MaxPages: 5,
			Selectors: Selectors{
				Card:     []string{".item-info-container", "article.item"},
				Link:     []string{".item-link", "a"},
				Title:    []string{".item-link", "a"},
				Price:    []string{".item-price", ".price"},
				Location: []string{".item-location", ".item-detail-location"},
				Details:  []string{".item-description", ".item_detail"},
			},
		},
		{
			ID:      "imovirtual",
			BaseURL: "https://www.imovirtual.com/pt/",
			SearchURL: "https://www.imovirtual.com/pt/comprar/moradia/covilha/" +
				"?price_to={{opt .MaxPrice}}&roomsNumber_from={{opt .MinBedrooms}}&page={{.Page}}",
			MaxPages: 5,
			Selectors: Selectors{
				Card:     []string{"article[data-cy='listing-item']", "article"},
				Link:     []string{"a"},
				Title:    []string{"[data-cy='listing-title']", "h2"},
				Price:    []string{"[data-cy='listing-price']", ".price"},
				Location: []string{"[data-cy='listing-location']", ".location"},
				Details:  []string{"[data-cy='listing-description']", "p"},
			},
		},
		{
			ID:      "casasapo",
			BaseURL: "https://www.casa.sapo.pt",
			SearchURL: "https://www.casa.sapo.pt/Casas-para-Venda/" +
				"?site=1&q=Covilh%C3%A3&tt=1&or=1&pvmax={{opt .MaxPrice}}&pn={{.Page}}",
			MaxPages: 5,
			Selectors: Selectors{
				Card:     []string{"div.ListItem", "div.SearchResultProperty"},
				Link:     []string{"a"},
				Price:    []string{".Price", ".price"},
				Location: []string{".LocationName", ".Location"},
				Details:  []string{".Description", "p"},
			},
		},
		{
			ID:           "remax",
			BaseURL:      "https://www.remax.pt",
			SearchURL:    "https://www.remax.pt/comprar?search=covilha&maxprice={{opt .MaxPrice}}",
			MaxPages:     1,
			DefaultTitle: "Imóvel Remax",
			Selectors:    agencySelectors(".property-price", ".price"),
		},
		{
			ID:           "era",
			BaseURL:      "https://www.era.pt",
			SearchURL:    "https://www.era.pt/comprar?location=covilha&priceTo={{opt .MaxPrice}}",
			MaxPages:     1,
			DefaultTitle: "Imóvel ERA",
			Selectors:    agencySelectors(".price", ".property-price"),
		},
		{
			ID:           "century21",
			BaseURL:      "https://www.century21.pt",
			SearchURL:    "https://www.century21.pt/comprar?search=covilha&maxPrice={{opt .MaxPrice}}",
			MaxPages:     1,
			DefaultTitle: "Imóvel Century21",
			Selectors:    agencySelectors(".price", ".property-price"),
		},
		{
			ID:      "olx",
			BaseURL: "https://www.olx.pt",
			SearchURL: "https://www.olx.pt/imoveis/casas-venda/covilha/" +
				"?search%5Bfilter_float_price%3Ato%5D={{opt .MaxPrice}}&page={{.Page}}",
			MaxPages: 5,
			Selectors: Selectors{
				Card:     []string{"div.css-1sw7q4x", "div.css-1apmciz"},
				Link:     []string{"a"},
				Price:    []string{"p[data-testid='ad-price']", "h6"},
				Location: []string{"p[data-testid='location-date']", "p"},
			},
		},
		{
			ID:      "trovit",
			BaseURL: "https://casa.trovit.pt",
			SearchURL: "https://casa.trovit.pt/index.php/cod.search_homes/type.1/what_d.covilha/" +
				"price.max_{{dflt .MaxPrice 60000}}/rooms.min_{{dflt .MinBedrooms 2}}/start.{{.Offset}}",
			MaxPages: 3,
			PageSize: 25,
			Selectors: Selectors{
				Card:     []string{"div.item-info", "div.item"},
				Link:     []string{"a"},
				Price:    []string{".price", ".item-price"},
				Location: []string{".city", ".specs"},
				Details:  []string{"p", ".description"},
			},
		},
	}
}
