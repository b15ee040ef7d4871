package modules

import (
	"github.com/cwbudde/algo-modular/synth/engine"
	"github.com/cwbudde/algo-modular/synth/render"
)

// Registry returns a registry with every canonical module type installed.
func Registry() *engine.Registry {
	r := engine.NewRegistry()

	r.MustRegister(TypeVCO, func(ctx *render.Context, id string, params map[string]any) (engine.Module, error) {
		return NewVCO(ctx, id, params)
	})
	r.MustRegister(TypeVCF, func(ctx *render.Context, id string, params map[string]any) (engine.Module, error) {
		return NewVCF(ctx, id, params)
	})
	r.MustRegister(TypeADSR, func(ctx *render.Context, id string, params map[string]any) (engine.Module, error) {
		return NewADSR(ctx, id, params)
	})
	r.MustRegister(TypeSaturator, func(ctx *render.Context, id string, params map[string]any) (engine.Module, error) {
		return NewSaturator(ctx, id, params)
	})
	r.MustRegister(TypeSequencer, func(ctx *render.Context, id string, params map[string]any) (engine.Module, error) {
		return NewSequencer(ctx, id, params)
	})
	r.MustRegister(TypeMIDIIn, func(ctx *render.Context, id string, params map[string]any) (engine.Module, error) {
		return NewMIDIIn(ctx, id, params)
	})
	r.MustRegister(TypeOutput, func(ctx *render.Context, id string, params map[string]any) (engine.Module, error) {
		return NewOutput(ctx, id, params)
	})

	return r
}
