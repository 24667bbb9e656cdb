package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/settings"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// selectVariant picks the variant a multi-chain call executes. It runs
// before any port is bound.
func selectVariant(s *spec.ExecutorSpec, call *Call, incoming []byte) (string, error) {
	mc := s.MultiChain
	id := mc.DefaultVariant
	if !call.Options.IgnoreParameters {
		if v := gjson.GetBytes(incoming, spec.SelectedVariantKey); v.Exists() {
			id = v.String()
		} else if v, ok := settings.String(call.Parameters, spec.SelectedVariantKey); ok {
			id = v
		} else if v, ok := settings.String(settings.Defaults(s), spec.SelectedVariantKey); ok {
			id = v
		}
	}
	if mc.Variant(id) == nil {
		return "", daedaluserrors.Configuration(daedaluserrors.ErrUnknownVariant,
			"multichain %q has no variant %q (declared: %v)", s.ID, id, mc.VariantIDs())
	}
	return id, nil
}

// variantDocument layers the variant's own section of the merged document,
// {"<variant id>": {...}}, over the multi-chain's settings.
func variantDocument(f *frame) ([]byte, error) {
	doc := settings.Combine(f.settings.Document, map[string]any{spec.SelectedVariantKey: f.variant})
	if own, ok := doc[f.variant].(map[string]any); ok {
		delete(doc, f.variant)
		doc = settings.Combine(doc, own)
	}
	return json.Marshal(doc)
}

func (w *multiChainWorker) run(ctx context.Context, f *frame) error {
	v := w.spec.MultiChain.Variant(f.variant)
	doc, err := variantDocument(f)
	if err != nil {
		return fmt.Errorf("multichain %q: variant %q settings: %w", w.spec.ID, v.ID, err)
	}
	w.engine.logger.Debug("variant selected",
		zap.String("multichain", w.spec.ID),
		zap.String("variant", v.ID),
		zap.String("executor", v.Executor),
		zap.String("session", f.call.Session))

	res, err := w.engine.invoke(ctx, &Call{
		Session:  f.call.Session,
		Executor: v.Executor,
		Inputs:   f.inputs,
		Outputs:  f.outputs,
		Settings: doc,
		Options: Options{
			AbsolutePaths: f.call.Options.AbsolutePaths,
			BaseDir:       f.call.Options.BaseDir,
		},
		depth:     f.call.depth + 1,
		forwarded: true,
	})
	if err != nil {
		return err
	}
	f.cancelled = res.Cancelled
	return nil
}
