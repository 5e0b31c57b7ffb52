package app_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"etlpipe/internal/app"
	"etlpipe/internal/config"
	"etlpipe/internal/domain"
	"etlpipe/internal/logger"
)

func chicagoConfig(rulesKey string) *config.Config {
	return &config.Config{
		Path: "pipeline.yaml",
		Sources: []domain.SourceDescriptor{{
			Name:     "chicago_crime",
			Method:   domain.AccessDirectCSV,
			Location: "https://data.cityofchicago.org/api/views/ijzp-q8t2/rows.csv",
		}},
		Rules: map[string][]domain.RuleConfig{
			rulesKey: {{Type: domain.RuleLimit, Config: map[string]any{"count": 10}}},
		},
	}
}

func TestNewRejectsRulesForUnknownTable(t *testing.T) {
	_, err := app.New(chicagoConfig("Chicago Data Portal"), logger.NewTest())

	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "pipeline.yaml", cfgErr.Path)
	require.ErrorIs(t, err, config.ErrUnknownTable)
}

func TestNewSharesLoggerWithSources(t *testing.T) {
	log := logger.NewTest()
	a, err := app.New(chicagoConfig("chicago_crime"), log)
	require.NoError(t, err)
	require.Same(t, log, a.Env.Log)
	require.Equal(t, []string{"pipeline.yaml"}, a.WatchPaths())
}
