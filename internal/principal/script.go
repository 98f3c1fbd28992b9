package principal

import (
	"context"
	"errors"
	"fmt"
	"time"

	lua "github.com/Shopify/go-lua"
)

// ErrScriptTimeout: el hook no terminó dentro del timeout configurado.
var ErrScriptTimeout = errors.New("principal: script timeout")

// ScriptEngine corre los hooks Lua del realm (authorize y mapping de
// atributos). Cada ejecución usa un estado Lua fresco, así los scripts no
// comparten globals entre logins.
type ScriptEngine struct {
	timeout time.Duration
}

func NewScriptEngine(timeout time.Duration) *ScriptEngine {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ScriptEngine{timeout: timeout}
}

// Authorize evalúa el hook de autorización. El chunk ve el global
// `principal` y su valor de retorno decide: false explícito deniega,
// cualquier otra cosa permite. Un error de ejecución también permite, el
// error se devuelve para que el caller lo loguee. Que un script roto no
// bloquee los logins del realm es intencional; denegar requiere un false
// explícito.
func (e *ScriptEngine) Authorize(ctx context.Context, script string, p *Principal) (bool, error) {
	res, err := e.run(ctx, script, func(l *lua.State) {
		pushPrincipal(l, p)
		l.SetGlobal("principal")
	})
	if err != nil {
		return true, err
	}
	if b, ok := res.(bool); ok && !b {
		return false, nil
	}
	return true, nil
}

// MapAttributes evalúa el hook de mapping: el chunk ve `attributes` y
// devuelve la tabla transformada. Retorno no-tabla o error dejan los
// atributos originales (el caller decide loguear).
func (e *ScriptEngine) MapAttributes(ctx context.Context, script string, attrs map[string]any) (map[string]any, error) {
	res, err := e.run(ctx, script, func(l *lua.State) {
		pushAttributes(l, attrs)
		l.SetGlobal("attributes")
	})
	if err != nil {
		return nil, err
	}
	mapped, ok := res.(map[string]any)
	if !ok {
		return nil, nil
	}
	return mapped, nil
}

type scriptResult struct {
	value any
	err   error
}

// run ejecuta el chunk en una goroutine propia. go-lua no es
// interrumpible, así que al vencer el timeout abandonamos la goroutine y
// reportamos ErrScriptTimeout.
func (e *ScriptEngine) run(ctx context.Context, script string, setup func(*lua.State)) (any, error) {
	done := make(chan scriptResult, 1)
	go func() {
		done <- runChunk(script, setup)
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrScriptTimeout
	}
}

func runChunk(script string, setup func(*lua.State)) scriptResult {
	l := lua.NewState()
	lua.OpenLibraries(l)
	setup(l)

	if err := lua.LoadString(l, script); err != nil {
		return scriptResult{err: fmt.Errorf("load script: %w", err)}
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return scriptResult{err: fmt.Errorf("run script: %w", err)}
	}

	v := popValue(l)
	return scriptResult{value: v}
}

func pushPrincipal(l *lua.State, p *Principal) {
	l.NewTable()
	setStringField(l, "subject", p.PrincipalID)
	setStringField(l, "username", p.Username)
	setStringField(l, "email", p.Email)
	l.PushBoolean(p.EmailVerified)
	l.SetField(-2, "email_verified")
	setStringField(l, "realm", p.Realm)
	setStringField(l, "provider", p.Provider)
	setStringField(l, "authority", string(p.Authority))
	pushAttributes(l, p.Attributes)
	l.SetField(-2, "attributes")
}

func pushAttributes(l *lua.State, attrs map[string]any) {
	l.NewTable()
	for k, v := range attrs {
		switch t := v.(type) {
		case string:
			l.PushString(t)
		case bool:
			l.PushBoolean(t)
		case []string:
			l.NewTable()
			for i, s := range t {
				l.PushString(s)
				l.RawSetInt(-2, i+1)
			}
		default:
			continue
		}
		l.SetField(-2, k)
	}
}

func setStringField(l *lua.State, key, v string) {
	l.PushString(v)
	l.SetField(-2, key)
}

// popValue baja el valor de retorno del chunk a Go. Tablas con índices
// 1..n consecutivos vuelven como []string, el resto como map[string]any.
func popValue(l *lua.State) any {
	defer l.Pop(1)
	switch l.TypeOf(-1) {
	case lua.TypeBoolean:
		return l.ToBoolean(-1)
	case lua.TypeString:
		s, _ := l.ToString(-1)
		return s
	case lua.TypeNumber:
		n, _ := l.ToNumber(-1)
		return n
	case lua.TypeTable:
		return tableToGo(l, l.AbsIndex(-1))
	default:
		return nil
	}
}

func tableToGo(l *lua.State, idx int) any {
	m := make(map[string]any)
	var seq []string
	isSeq := true

	l.PushNil()
	for l.Next(idx) {
		var val any
		switch l.TypeOf(-1) {
		case lua.TypeString:
			val, _ = l.ToString(-1)
		case lua.TypeBoolean:
			val = l.ToBoolean(-1)
		case lua.TypeNumber:
			n, _ := l.ToNumber(-1)
			val = fmt.Sprintf("%v", n)
		case lua.TypeTable:
			val = tableToGo(l, l.AbsIndex(-1))
		}

		if l.TypeOf(-2) == lua.TypeString {
			isSeq = false
			key, _ := l.ToString(-2)
			m[key] = val
		} else if s, ok := val.(string); ok {
			seq = append(seq, s)
		} else {
			isSeq = false
		}
		l.Pop(1)
	}

	if isSeq && len(seq) > 0 {
		return seq
	}
	return m
}
