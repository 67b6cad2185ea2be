package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/archive"
	"github.com/wadl-labs/candidate-sourcer/internal/config"
	"github.com/wadl-labs/candidate-sourcer/internal/notify"
)

func TestVersionCommandSkipsServiceWiring(t *testing.T) {
	orig := newAppFn
	newAppFn = func(context.Context, string) (*app, error) {
		t.Fatal("version must not wire services")
		return nil, nil
	}
	t.Cleanup(func() { newAppFn = orig })

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "sourcer dev")
}

func TestRunRequiresJDFile(t *testing.T) {
	orig := newAppFn
	newAppFn = func(context.Context, string) (*app, error) {
		return &app{logger: zap.NewNop()}, nil
	}
	t.Cleanup(func() { newAppFn = orig })

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run"})
	require.Error(t, root.Execute())
}

func TestBuildChannelsDatasetPreferred(t *testing.T) {
	a := &app{logger: zap.NewNop(), cfg: config.Config{
		Dataset: config.DatasetConfig{APIKey: "key", DatasetID: "ds"},
	}}
	dataset, chain, err := a.buildChannels()
	require.NoError(t, err)
	require.NotNil(t, dataset)
	require.NotNil(t, chain)
	require.Nil(t, a.browser)
}

func TestBuildChannelsFallsBackToSession(t *testing.T) {
	a := &app{logger: zap.NewNop(), cfg: config.Config{
		Session: config.SessionConfig{APIKey: "sk", Endpoint: "https://session.example"},
	}}
	dataset, chain, err := a.buildChannels()
	require.NoError(t, err)
	require.Nil(t, dataset)
	require.NotNil(t, chain)
}

func TestBuildArchiverProviders(t *testing.T) {
	a := &app{logger: zap.NewNop()}

	ar, err := a.buildArchiver(context.Background())
	require.NoError(t, err)
	require.IsType(t, archive.Noop{}, ar)

	a.cfg.Archive.Provider = "tape-robot"
	_, err = a.buildArchiver(context.Background())
	require.ErrorContains(t, err, "unknown archive provider")
}

func TestBuildNotifierProviders(t *testing.T) {
	a := &app{logger: zap.NewNop()}

	n, err := a.buildNotifier(context.Background())
	require.NoError(t, err)
	require.IsType(t, notify.Noop{}, n)

	a.cfg.Notify.Provider = "carrier-pigeon"
	_, err = a.buildNotifier(context.Background())
	require.ErrorContains(t, err, "unknown notify provider")
}
