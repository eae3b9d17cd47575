package workflow

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"outreach-controlplane/services/lead"

	"github.com/stretchr/testify/require"
)

type captureExporter struct {
	leads []*lead.Lead
	err   error
}

func (c *captureExporter) Export(ctx context.Context, wf *Workflow, historyID string, leads []*lead.Lead) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.leads = leads
	return "exports/" + wf.CompanyID + "/" + historyID + ".csv", nil
}

func TestEncodeCSV(t *testing.T) {
	l := &lead.Lead{PublicIdentifier: "jane", FirstName: "Jane", LastName: "Doe, Jr.", ConnectionsCount: 42, NetworkDistance: "DISTANCE_2"}
	l.SetPrivateID("ACo9")

	body, err := encodeCSV([]*lead.Lead{l})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, exportHeader, rows[0])
	require.Equal(t, "ACo9", rows[1][0])
	require.Equal(t, "Doe, Jr.", rows[1][3])
	require.Equal(t, "42", rows[1][8])
}

func TestExecute_SearchExportsResults(t *testing.T) {
	env := newTestEnv(t)
	exp := &captureExporter{}
	env.exec.exporter = exp
	env.client.SearchProfilesFn = searchReturning(profile(1), profile(2))

	res, err := env.exec.Execute(context.Background(), ExecuteRequest{Workflow: &Workflow{
		CompanyID: "c1", ProviderID: "p1", Type: TypeSearch, Keywords: "CTO",
	}})
	require.NoError(t, err)
	require.Len(t, exp.leads, 2)
	require.Equal(t, "exports/c1/"+res.HistoryID+".csv", res.ExportKey)
}

func TestExecute_ExportFailureDoesNotFailRun(t *testing.T) {
	env := newTestEnv(t)
	env.exec.exporter = &captureExporter{err: errors.New("bucket gone")}
	env.client.SearchProfilesFn = searchReturning(profile(1))

	res, err := env.exec.Execute(context.Background(), ExecuteRequest{Workflow: &Workflow{
		CompanyID: "c1", ProviderID: "p1", Type: TypeSearch, Keywords: "CTO",
	}})
	require.NoError(t, err)
	require.Equal(t, HistorySuccess, res.Status)
	require.Empty(t, res.ExportKey)
}
