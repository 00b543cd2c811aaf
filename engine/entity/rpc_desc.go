package entity

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/xiaonanln/gomercury/engine/entitydef"
	"github.com/xiaonanln/gomercury/engine/gwlog"
	"github.com/xiaonanln/gomercury/engine/mailbox"
	"github.com/xiaonanln/typeconv"
)

type rpcDesc struct {
	Func       reflect.Value
	MethodType reflect.Type
	NumArgs    int
	Method     *entitydef.MethodDescription
}

// rpcDescMap maps method utypes to Go methods
type rpcDescMap map[uint16]*rpcDesc

// goMethodName returns the exported Go method name of a declared method: say -> Say
func goMethodName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func (rdm rpcDescMap) visit(entityPtrType reflect.Type, md *entitydef.MethodDescription) {
	method, ok := entityPtrType.MethodByName(goMethodName(md.Name))
	if !ok {
		gwlog.Panicf("%s: method %s of %s is not implemented", entityPtrType.Elem().Name(), md.Name, md.Role)
	}
	methodType := method.Type
	numArgs := methodType.NumIn() - 1 // do not count the receiver
	if numArgs != len(md.Args) {
		gwlog.Panicf("%s.%s: declared with %d args, but implemented with %d", entityPtrType.Elem().Name(), method.Name, len(md.Args), numArgs)
	}
	rdm[md.UType] = &rpcDesc{
		Func:       method.Func,
		MethodType: methodType,
		NumArgs:    numArgs,
		Method:     md,
	}
}

// call invokes the method on the entity instance, args are values read by MethodDescription.CreateFromStream
func (rd *rpcDesc) call(e *Entity, args []interface{}) {
	in := make([]reflect.Value, rd.NumArgs+1)
	in[0] = e.V // first argument is the bind instance (self)
	for i := 0; i < rd.NumArgs; i++ {
		argType := rd.MethodType.In(i + 1)
		var arg interface{}
		if i < len(args) {
			arg = args[i]
		}
		if mb, ok := arg.(*mailbox.Mailbox); ok {
			if mb == nil {
				in[i+1] = reflect.Zero(argType)
				continue
			}
			e.manager.router.Attach(mb)
		}
		if arg == nil {
			in[i+1] = reflect.Zero(argType)
		} else if reflect.TypeOf(arg).AssignableTo(argType) {
			in[i+1] = reflect.ValueOf(arg)
		} else {
			in[i+1] = typeconv.Convert(arg, argType)
		}
	}
	rd.Func.Call(in)
}

func (rd *rpcDesc) String() string {
	return strings.Join([]string{rd.Method.EntityDef().Name, rd.Method.Name}, ".")
}
