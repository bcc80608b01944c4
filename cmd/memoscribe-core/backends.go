package main

import (
	"context"
	"fmt"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/asr/awstranscribe"
	"github.com/tiroq/memoscribe/internal/asr/localwhisper"
	"github.com/tiroq/memoscribe/internal/asr/openai"
	"github.com/tiroq/memoscribe/internal/asr/remotewhisper"
	"github.com/tiroq/memoscribe/internal/config"
	"github.com/tiroq/memoscribe/internal/diaglog"
)

// capabilities is the assembled capability set handed to the session.
type capabilities struct {
	registry   *asr.Registry
	summarizer asr.Summarizer
	suggester  asr.PromptSuggester
}

type logSetter interface {
	SetLogger(*diaglog.Logger)
}

// buildCapabilities constructs only the backends the config references.
func buildCapabilities(ctx context.Context, cfg config.ASRConfig, logger *diaglog.Logger) (*capabilities, error) {
	built := map[string]asr.Transcriber{}
	get := func(name string) (asr.Transcriber, error) {
		if b, ok := built[name]; ok {
			return b, nil
		}
		var b asr.Transcriber
		switch name {
		case config.BackendOpenAI:
			b = openai.New(cfg.OpenAI)
		case config.BackendRemoteWhisper:
			b = remotewhisper.NewClient(cfg.RemoteWhisper)
		case config.BackendAWS:
			aws, err := awstranscribe.New(ctx, cfg.AWS)
			if err != nil {
				return nil, fmt.Errorf("aws transcribe: %w", err)
			}
			b = aws
		case config.BackendLocalWhisper:
			b = localwhisper.New(cfg.LocalWhisper)
		default:
			return nil, fmt.Errorf("unknown backend %q", name)
		}
		if ls, ok := b.(logSetter); ok {
			ls.SetLogger(logger)
		}
		built[name] = b
		return b, nil
	}

	caps := &capabilities{registry: asr.NewRegistry()}

	primary, err := get(cfg.Primary)
	if err != nil {
		return nil, err
	}
	caps.registry.Register(cfg.Primary, primary)
	if cfg.Fallback != "" && cfg.Fallback != cfg.Primary {
		fb, err := get(cfg.Fallback)
		if err != nil {
			return nil, err
		}
		caps.registry.Register(cfg.Fallback, fb)
		caps.registry.SetFallback(cfg.Fallback)
	}

	sb, err := get(cfg.Summarizer)
	if err != nil {
		return nil, err
	}
	var ok bool
	if caps.summarizer, ok = sb.(asr.Summarizer); !ok {
		return nil, fmt.Errorf("backend %q cannot summarize", cfg.Summarizer)
	}
	if caps.suggester, ok = sb.(asr.PromptSuggester); !ok {
		return nil, fmt.Errorf("backend %q cannot suggest prompts", cfg.Summarizer)
	}
	return caps, nil
}
