// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/vaultchat/internal/autocomplete"
	"github.com/jeranaias/vaultchat/internal/cloud"
	"github.com/jeranaias/vaultchat/internal/compose"
	"github.com/jeranaias/vaultchat/internal/config"
	"github.com/jeranaias/vaultchat/internal/index"
	"github.com/jeranaias/vaultchat/internal/model"
	"github.com/jeranaias/vaultchat/internal/session"
	"github.com/jeranaias/vaultchat/internal/storage"
	"github.com/jeranaias/vaultchat/internal/vault"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// App owns the collaborators of one command invocation. Each is opened on
// first use and closed by Close.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	// httpClient overrides the completion transport. Tests only.
	httpClient *http.Client

	repo    *storage.Repository
	vault   *vault.FS
	index   *index.Index
	client  *cloud.Client
	session *session.Session
}

// Store opens the conversation database.
func (a *App) Store(ctx context.Context) (*storage.Repository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	repo, err := storage.Open(ctx, a.Config.Storage.DatabasePath, storage.Options{
		Logger: a.Logger.Named("storage"),
	})
	if err != nil {
		return nil, err
	}
	if res := repo.OpenMigration(); res.Changed() {
		a.Logger.Info("conversation database migrated",
			zap.Int("from", res.From),
			zap.Int("to", res.To),
			zap.Int("coerced", res.Coerced),
			zap.Int("reset", res.Reset))
	}
	a.repo = repo
	return repo, nil
}

// Vault opens the configured vault.
func (a *App) Vault() (*vault.FS, error) {
	if a.vault != nil {
		return a.vault, nil
	}
	if err := a.Config.RequireVault(); err != nil {
		return nil, err
	}
	v, err := vault.New(a.Config.Vault.Root, vault.Options{
		MaxFileSize:  a.Config.Vault.MaxAttachmentBytes,
		Ignore:       a.Config.Vault.Ignore,
		CacheEntries: a.Config.Vault.CacheEntries,
		Logger:       a.Logger.Named("vault"),
	})
	if err != nil {
		return nil, err
	}
	a.vault = v
	return v, nil
}

// Index opens the path index. watch keeps it current for long-running
// commands; it also requires vault.watch.
func (a *App) Index(ctx context.Context, watch bool) (*index.Index, error) {
	if a.index != nil {
		return a.index, nil
	}
	v, err := a.Vault()
	if err != nil {
		return nil, err
	}
	idx, err := index.Open(ctx, v, index.Config{
		DatabasePath:  a.Config.Storage.IndexPath,
		MaxResults:    a.Config.Autocomplete.MaxSuggestions,
		EnableWatch:   watch && a.Config.Vault.Watch,
		WatchDebounce: a.Config.Vault.WatchDebounce(),
	}, a.Logger.Named("index"))
	if err != nil {
		return nil, err
	}
	a.index = idx
	return idx, nil
}

// Autocomplete builds a suggestion controller over the path index.
func (a *App) Autocomplete(ctx context.Context, watch bool) (*autocomplete.Controller, error) {
	idx, err := a.Index(ctx, watch)
	if err != nil {
		return nil, err
	}
	return autocomplete.NewController(idx,
		autocomplete.WithMaxSuggestions(a.Config.Autocomplete.MaxSuggestions),
		autocomplete.WithLogger(a.Logger.Named("autocomplete")),
	), nil
}

// Composer builds a message composer reading attachments from the vault.
func (a *App) Composer() (*compose.Composer, error) {
	v, err := a.Vault()
	if err != nil {
		return nil, err
	}
	logger := a.Logger.Named("compose")
	return compose.NewComposer(
		compose.NewBuilder(v, logger),
		compose.WithConcurrency(a.Config.Compose.ResolveConcurrency),
		compose.WithLogger(logger),
	), nil
}

// Client returns the completion client.
func (a *App) Client() *cloud.Client {
	if a.client == nil {
		m := a.Config.Model
		a.client = cloud.NewClient(cloud.Config{
			APIKey:            m.APIKey,
			BaseURL:           m.BaseURL,
			Model:             m.Model,
			MaxTokens:         m.MaxTokens,
			MaxRetries:        m.MaxRetries,
			RequestsPerMinute: m.RequestsPerMinute,
			HTTPClient:        a.httpClient,
			Logger:            a.Logger.Named("cloud"),
		})
	}
	return a.client
}

// Session wires a chat session over the store, composer and client.
func (a *App) Session(ctx context.Context) (*session.Session, error) {
	if a.session != nil {
		return a.session, nil
	}
	repo, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	composer, err := a.Composer()
	if err != nil {
		return nil, err
	}
	completer := timeoutCompleter{next: a.Client(), timeout: a.Config.Model.Timeout()}
	a.session = session.New(repo, composer, completer, a.Logger.Named("session"))
	return a.session, nil
}

// Close releases everything that was opened. It is safe to call twice.
func (a *App) Close() error {
	var errs []error
	if a.session != nil {
		a.session.Close()
		a.session = nil
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
		a.index = nil
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
		a.repo = nil
	}
	if a.Logger != nil {
		// Sync fails on stderr for some terminals; nothing useful to do about it
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

// =============================================================================
// COMPLETION TIMEOUT
// =============================================================================

// timeoutCompleter bounds each completion with the configured timeout.
// Zero means no bound.
type timeoutCompleter struct {
	next    session.Completer
	timeout time.Duration
}

func (t timeoutCompleter) Complete(ctx context.Context, msgs []model.Message) (model.Message, error) {
	if t.timeout <= 0 {
		return t.next.Complete(ctx, msgs)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, msgs)
}
