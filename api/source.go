package api

import (
	"context"

	"github.com/papercomputeco/citysql/relay"
)

// generatedSource relays a whole generated answer as one fragment.
type generatedSource struct {
	relay.Source
	sql string
}

func newGeneratedSource(a Answerer, question string) *generatedSource {
	g := &generatedSource{}
	g.Source = relay.Deferred(func(ctx context.Context) (string, error) {
		ans, err := a.Generate(ctx, question)
		if err != nil {
			return "", err
		}
		g.sql = ans.SQL
		return ans.Text, nil
	})
	return g
}

func (g *generatedSource) LastQuery() string {
	return g.sql
}
