package extract

import (
	"kumo/internal/errs"
	"kumo/internal/rule"
	"kumo/internal/value"
)

// Field drives a FieldExtractor: the primary pipeline, then each
// fallback pipeline against the original input, then the default
// value. A non-nullable extractor never returns empty — it errors
// instead.
func Field(fe *rule.FieldExtractor, in value.Value, ec *Context) (value.Value, error) {
	out, err := Steps(fe.Steps, in, ec)
	if err == nil && (fe.Nullable || !out.IsEmpty()) {
		return out, nil
	}

	for _, alt := range fe.Fallback {
		v, altErr := Steps(alt, in, ec)
		if altErr == nil && !v.IsEmpty() {
			return v, nil
		}
	}

	if fe.HasDefault {
		return value.FromJSON(fe.Default), nil
	}

	if err != nil {
		return value.Null(), err
	}
	return value.Null(), errs.New(errs.KindExtraction, "field extraction produced no value")
}

// Steps executes a pipeline in declared order; each step sees the
// previous step's exact output.
func Steps(steps []rule.Step, in value.Value, ec *Context) (value.Value, error) {
	current := in
	for i := range steps {
		next, err := runStep(&steps[i], current, ec)
		if err != nil {
			return value.Null(), err
		}
		current = next
	}
	return current, nil
}

func runStep(step *rule.Step, in value.Value, ec *Context) (value.Value, error) {
	switch step.Kind {
	case rule.StepCSS:
		return execCSS(step.Selector, in)
	case rule.StepJSON:
		return execJSONPath(step.Selector, in)
	case rule.StepXPath:
		return execXPath(step.Selector, in, ec)
	case rule.StepRegex:
		return execRegex(step.Regex, in)
	case rule.StepFilter:
		return execFilter(step.Filter, in, ec)
	case rule.StepAttr:
		return execAttr(step.Attr, in)
	case rule.StepIndex:
		return execIndex(step.Index, in)
	case rule.StepConst:
		return value.FromJSON(step.Const), nil
	case rule.StepVar:
		return execVar(step.Var, ec)
	case rule.StepSetVar:
		ec.SetVar(step.SetVar, in.AsJSON())
		return in, nil
	case rule.StepScript:
		return execScript(step.Script, in, ec)
	case rule.StepUseComponent:
		return execComponent(step.Component, in, ec)
	case rule.StepMap:
		return execMap(step.Steps, in, ec)
	case rule.StepCondition:
		return execCondition(step.Condition, in, ec)
	default:
		return value.Null(), errs.New(errs.KindExtraction, "unknown step kind %q", step.Kind)
	}
}

func execVar(name string, ec *Context) (value.Value, error) {
	v, ok := ec.Resolve(name)
	if !ok {
		return value.Null(), errs.New(errs.KindVariableNotFound, "variable %q is not defined", name)
	}
	return value.FromJSON(v), nil
}

func execMap(steps []rule.Step, in value.Value, ec *Context) (value.Value, error) {
	items, ok := in.AsArray()
	if !ok {
		return value.Null(), errs.New(errs.KindExtraction, "map step requires array input, got %s", in.Kind())
	}
	out := make([]value.Value, 0, len(items))
	for _, item := range items {
		v, err := Steps(steps, item, ec)
		if err != nil {
			// Failed elements drop silently, mirroring fallback
			// semantics for list items.
			continue
		}
		out = append(out, v)
	}
	return value.Array(out), nil
}

func execCondition(spec *rule.ConditionSpec, in value.Value, ec *Context) (value.Value, error) {
	truthy := false
	if when, err := Steps(spec.When, in, ec); err == nil {
		truthy = when.IsTruthy()
	}
	if truthy {
		return Steps(spec.Then, in, ec)
	}
	if spec.Else != nil {
		return Steps(spec.Else, in, ec)
	}
	return in, nil
}

func execComponent(ref *rule.ComponentRef, in value.Value, ec *Context) (value.Value, error) {
	if ec.depth >= maxComponentDepth {
		return value.Null(), errs.New(errs.KindExtraction, "component call depth exceeded %d at %q", maxComponentDepth, ref.Name)
	}
	def, ok := ec.Rule.Components[ref.Name]
	if !ok {
		return value.Null(), errs.New(errs.KindUndefinedComponent, "component %q is not defined", ref.Name)
	}

	// Component inputs and call-site args shadow flow variables for the
	// duration of the inner call.
	merged := make(map[string]any, len(def.Inputs)+len(ref.Args))
	for k, v := range def.Inputs {
		merged[k] = v
	}
	for k, v := range ref.Args {
		merged[k] = v
	}

	saved := make(map[string]any, len(merged))
	present := make(map[string]bool, len(merged))
	for k, v := range merged {
		if old, ok := ec.Vars[k]; ok {
			saved[k] = old
			present[k] = true
		}
		ec.SetVar(k, v)
	}

	ec.depth++
	out, err := Field(&def.Extractor, in, ec)
	ec.depth--

	for k := range merged {
		if present[k] {
			ec.Vars[k] = saved[k]
		} else {
			delete(ec.Vars, k)
		}
	}
	return out, err
}
