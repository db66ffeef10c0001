package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r := Default()
	assert.Equal(t,
		[]string{"idealista", "imovirtual", "casasapo", "remax", "era", "century21", "olx", "trovit"},
		r.IDs())

	d, err := r.Get("Remax")
	require.NoError(t, err)
	assert.Equal(t, KindHTML, d.Kind)
	assert.Equal(t, RenderHTTP, d.Render)
	assert.Equal(t, 1, d.MaxPages)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestPageURL(t *testing.T) {
	r := Default()

	tests := []struct {
		id       string
		q        Query
		expected string
	}{
		{"idealista", Query{MaxPrice: 60000, MinBedrooms: 2, Page: 1},
			"https://www.idealista.pt/comprar-casas/covilha/com-preco-max_60000/tipo-moradia/t2/"},
		{"idealista", Query{Page: 3},
			"https://www.idealista.pt/comprar-casas/covilha/tipo-moradia/pag-3.htm"},
		{"imovirtual", Query{MaxPrice: 50000, Page: 2},
			"https://www.imovirtual.com/pt/comprar/moradia/covilha/?price_to=50000&roomsNumber_from=&page=2"},
		{"trovit", Query{Page: 2},
			"https://casa.trovit.pt/index.php/cod.search_homes/type.1/what_d.covilha/price.max_60000/rooms.min_2/start.25"},
		{"remax", Query{MaxPrice: 70000},
			"https://www.remax.pt/comprar?search=covilha&maxprice=70000"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			d, err := r.Get(tt.id)
			require.NoError(t, err)
			got, err := d.PageURL(tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolve(t *testing.T) {
	d := Definition{BaseURL: "https://www.imovirtual.com/pt/"}
	assert.Equal(t, "https://www.imovirtual.com/pt/anuncio/1", d.Resolve("/pt/anuncio/1"))
	assert.Equal(t, "https://www.imovirtual.com/pt/x", d.Resolve("x"))
	assert.Equal(t, "https://other.example/a", d.Resolve("https://other.example/a"))
	assert.Equal(t, "", d.Resolve("  "))
}

func TestNewRegistry(t *testing.T) {
	t.Run("override merges set fields", func(t *testing.T) {
		r, err := NewRegistry(Builtin(),
			Definition{ID: "olx", Render: RenderBrowser, MaxPages: 2},
			Definition{ID: "demo", Kind: KindMock},
		)
		require.NoError(t, err)

		olx, err := r.Get("olx")
		require.NoError(t, err)
		assert.Equal(t, RenderBrowser, olx.Render)
		assert.Equal(t, 2, olx.MaxPages)
		assert.Equal(t, []string{"div.css-1sw7q4x", "div.css-1apmciz"}, olx.Selectors.Card)

		demo, err := r.Get("demo")
		require.NoError(t, err)
		assert.Equal(t, "https://demo.example.invalid", demo.BaseURL)
		assert.Equal(t, "demo", r.IDs()[len(r.IDs())-1])
	})

	t.Run("invalid definitions", func(t *testing.T) {
		cases := map[string][]Definition{
			"duplicate":    {{ID: "a", Kind: KindMock}, {ID: "A", Kind: KindMock}},
			"empty id":     {{ID: " ", Kind: KindMock}},
			"no url":       {{ID: "a", Selectors: Selectors{Card: []string{"div"}}}},
			"no cards":     {{ID: "a", SearchURL: "https://a.example"}},
			"unknown kind": {{ID: "a", Kind: "ftp"}},
			"bad template": {{ID: "a", Kind: KindFeed, SearchURL: "https://a.example/{{.Nope"}},
			"bad render":   {{ID: "a", Kind: KindFeed, Render: "x", SearchURL: "https://a.example"}},
		}
		for name, defs := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := NewRegistry(defs)
				assert.Error(t, err)
			})
		}
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		r := Default()
		ids := r.IDs()
		ids[0] = "changed"
		assert.Equal(t, "idealista", r.IDs()[0])
	})
}
