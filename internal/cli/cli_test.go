package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RULES_FILE", "")
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestOfferCmd(t *testing.T) {
	out, err := run(t, "offer", "--arv", "300000", "--repairs", "25000")
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 126000.0, got["offer"])
	assert.Equal(t, "green", got["band"])

	_, err = run(t, "offer", "--arv", "abc")
	assert.Error(t, err)

	_, err = run(t, "offer")
	assert.Error(t, err, "--arv is required")
}

func TestIncomeCmd(t *testing.T) {
	out, err := run(t, "income", "--market", "dallas-tx", "--type", "multi-family-2-4",
		"--units", "4", "--rents", "1200,1250,1300,1200")
	require.NoError(t, err)
	assert.Contains(t, out, "\"offer\"")

	_, err = run(t, "income", "--market", "dallas-tx", "--type", "multi-family-2-4",
		"--units", "4", "--rents", "1200,1250")
	assert.Error(t, err)
}

func TestLeadCmd(t *testing.T) {
	out, err := run(t, "lead", "--name", "Pat Seller", "--email", "pat@example.com", "--phone", "+12145550111",
		"--timeline", "ASAP", "--units", "12", "--equity", "high", "--condition", "poor")
	require.NoError(t, err)

	var got struct {
		Score struct {
			Score int `json:"score"`
		} `json:"score"`
		Priority string `json:"priority"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 100, got.Score.Score)
	assert.Equal(t, "immediate", got.Priority)
}

func TestMatchCmd(t *testing.T) {
	dir := t.TempDir()
	deal := filepath.Join(dir, "deal.json")
	criteria := filepath.Join(dir, "criteria.json")
	require.NoError(t, os.WriteFile(deal, []byte(`{
		"property_type": "single-family", "units": 1, "price": 126000, "arv": 300000,
		"repairs": 25000, "roi": 0.9, "deal_quality_score": 100, "neighborhood": "Oak Lawn"
	}`), 0644))
	require.NoError(t, os.WriteFile(criteria, []byte(`{
		"min_budget": 100000, "max_budget": 200000, "property_types": ["single-family"],
		"preferred_neighborhoods": ["Oak Lawn"], "min_roi": 0.2, "min_deal_quality": 60
	}`), 0644))

	out, err := run(t, "match", "--deal", deal, "--criteria", criteria)
	require.NoError(t, err)

	var got matchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Publishable)
	assert.Greater(t, got.Score, 0)

	_, err = run(t, "match", "--deal", filepath.Join(dir, "missing.json"), "--criteria", criteria)
	assert.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules", "rules.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = run(t, "config", "init", path)
	assert.Error(t, err, "refuses to overwrite")
	_, err = run(t, "config", "init", "--force", path)
	assert.NoError(t, err)

	// The written file loads back to the defaults
	p, err := config.NewRulesProvider(path, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRules().Offer, p.Current().Offer)

	out, err = run(t, "--rules", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "offer:")
}
