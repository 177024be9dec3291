package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	domain "github.com/davidleathers/cloud-posture-engine/internal/domain/analysis"
	"github.com/davidleathers/cloud-posture-engine/internal/domain/framework"
)

// resourceIndexKey is a hidden field on each Lua resource table used to map
// findings back to the Go-side resource.
const resourceIndexKey = "__resourceIndex"

// ScriptBackend evaluates sandboxed-script rules in an embedded Lua VM. Each
// evaluation gets a fresh VM so scripts cannot observe each other's state.
// The VM starts with no standard libraries; only base, table, string and
// math are opened, and the file loaders are removed so scripts cannot touch
// the filesystem.
//
// The only resource bound enforced on a script is wall-clock time. A rule's
// MaxMemoryMB is accepted but not enforced: the interpreter exposes no
// allocation accounting, and its registry and call-stack size options cap
// stack depth rather than heap growth.
type ScriptBackend struct {
	defaultTimeout time.Duration
	logger         *zap.Logger
}

func NewScriptBackend(defaultTimeout time.Duration, logger *zap.Logger) *ScriptBackend {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &ScriptBackend{
		defaultTimeout: defaultTimeout,
		logger:         logger.Named("script_backend"),
	}
}

func (b *ScriptBackend) Evaluate(ctx context.Context, req DispatchRequest) ([]domain.Finding, map[string]string, error) {
	rule := req.Rule
	if rule.Implementation.Runtime != "" && rule.Implementation.Runtime != "lua" {
		return nil, nil, fmt.Errorf("unsupported script runtime %q", rule.Implementation.Runtime)
	}

	timeout := rule.Implementation.Timeout
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	L.SetContext(ctx)
	openSandboxLibs(L)

	var (
		mu       sync.Mutex
		findings []domain.Finding
	)
	createFinding := L.NewFunction(func(ls *lua.LState) int {
		res := ls.CheckTable(1)
		title := ls.CheckString(2)
		description := ls.CheckString(3)

		var resource domain.ResourceInfo
		if idx, ok := ls.GetField(res, resourceIndexKey).(lua.LNumber); ok {
			i := int(idx) - 1
			if i >= 0 && i < len(req.Resources) {
				resource = req.Resources[i]
			}
		}
		mu.Lock()
		findings = append(findings, domain.NewFinding(rule, resource, title, description))
		mu.Unlock()
		return 0
	})

	utils := L.NewTable()
	L.SetField(utils, "createFinding", createFinding)
	L.SetGlobal("utils", utils)
	L.SetGlobal("resources", resourcesToLua(L, req.Resources))
	L.SetGlobal("rule", ruleToLua(L, rule, req.Parameters))
	L.SetGlobal("params", goValueToLua(L, anyMap(req.Parameters)))

	if err := L.DoString(rule.Implementation.Payload); err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("script timed out after %s: %w", timeout, ctx.Err())
		}
		return nil, nil, fmt.Errorf("script execution failed: %w", err)
	}
	return findings, nil, nil
}

// openSandboxLibs opens the whitelisted standard libraries and strips every
// entry point that reaches the filesystem. The package lib must be opened
// first; the other loaders register through it.
func openSandboxLibs(L *lua.LState) {
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(pair.fn))
		L.Push(lua.LString(pair.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "package", "print"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func resourcesToLua(L *lua.LState, resources []domain.ResourceInfo) *lua.LTable {
	tbl := L.NewTable()
	for i, r := range resources {
		rt := L.NewTable()
		L.SetField(rt, "type", lua.LString(r.Type))
		L.SetField(rt, "name", lua.LString(r.Name))
		L.SetField(rt, "arn", lua.LString(r.ARN))
		L.SetField(rt, "region", lua.LString(r.Region))
		L.SetField(rt, "accountId", lua.LString(r.AccountID))
		L.SetField(rt, "properties", goValueToLua(L, anyMap(r.Properties)))
		L.SetField(rt, resourceIndexKey, lua.LNumber(i+1))
		tbl.Append(rt)
	}
	return tbl
}

func ruleToLua(L *lua.LState, rule *framework.Rule, params map[string]any) *lua.LTable {
	rt := L.NewTable()
	L.SetField(rt, "id", lua.LString(rule.ID))
	L.SetField(rt, "ruleId", lua.LString(rule.RuleID))
	L.SetField(rt, "name", lua.LString(rule.Name))
	L.SetField(rt, "severity", lua.LString(string(rule.Severity)))
	L.SetField(rt, "category", lua.LString(rule.Category))
	L.SetField(rt, "parameters", goValueToLua(L, anyMap(params)))
	return rt
}

// anyMap keeps a nil map nil so goValueToLua still emits an empty table for
// it instead of lua nil.
func anyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func goValueToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []any:
		tbl := L.NewTable()
		for _, item := range val {
			tbl.Append(goValueToLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.NewTable()
		for _, item := range val {
			tbl.Append(lua.LString(item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, goValueToLua(L, item))
		}
		return tbl
	case map[string]string:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, lua.LString(item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
