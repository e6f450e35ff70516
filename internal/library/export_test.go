// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-agent/pkg/types"
)

func TestExportCSLYAML(t *testing.T) {
	s, c, dir := setup(t)
	publishWithSummary(t, c, dir, "Attention Is All You Need", &types.PaperDetails{
		Title:           "Attention Is All You Need",
		Authors:         []string{"Ashish Vaswani", "Llion Jones"},
		PublicationYear: 2017,
		ArxivID:         "1706.03762",
		PDFURL:          "https://arxiv.org/pdf/1706.03762.pdf",
	}, "summary")

	_, err := s.Sync(context.Background(), c)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSL(context.Background(), &buf, "yaml"))

	var items []CSLItem
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "1706.03762", items[0].ID)
	assert.Equal(t, "article", items[0].Type)
	require.Len(t, items[0].Author, 2)
	assert.Equal(t, "Vaswani", items[0].Author[0].Family)
	assert.Equal(t, "Ashish", items[0].Author[0].Given)
	require.NotNil(t, items[0].Issued)
	assert.Equal(t, [][]int{{2017}}, items[0].Issued.DateParts)
}

func TestExportCSLJSON(t *testing.T) {
	s, c, dir := setup(t)
	publishWithSummary(t, c, dir, "Deep Residual Learning",
		&types.PaperDetails{Title: "Deep Residual Learning", DOI: "10.1109/CVPR.2016.90"}, "summary")

	_, err := s.Sync(context.Background(), c)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.ExportCSL(context.Background(), &buf, "json"))
	assert.Contains(t, buf.String(), `"DOI": "10.1109/CVPR.2016.90"`)

	err = s.ExportCSL(context.Background(), &buf, "xml")
	assert.Error(t, err)
}

func TestParseAuthorName(t *testing.T) {
	tests := []struct {
		name string
		want CSLName
	}{
		{"Ashish Vaswani", CSLName{Given: "Ashish", Family: "Vaswani"}},
		{"Jean van der Berg", CSLName{Given: "Jean van der", Family: "Berg"}},
		{"Plato", CSLName{Literal: "Plato"}},
		{"  ", CSLName{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseAuthorName(tt.name), tt.name)
	}
}
