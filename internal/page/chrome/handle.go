package chrome

import (
	"context"
	"sort"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/go-rod/rod/lib/proto"

	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
)

// Handle is a remote object reference.
type Handle struct {
	page *Page
	obj  *proto.RuntimeRemoteObject
}

var _ jquery.Handle = (*Handle)(nil)

// Object returns the remote object.
func (h *Handle) Object() *proto.RuntimeRemoteObject { return h.obj }

// IsElement reports whether the object is a DOM element.
func (h *Handle) IsElement() bool {
	return isElement(h.obj)
}

func isElement(obj *proto.RuntimeRemoteObject) bool {
	return obj != nil && obj.Type == proto.RuntimeRemoteObjectTypeObject &&
		obj.Subtype == proto.RuntimeRemoteObjectSubtypeNode
}

// Properties returns the array index members in index order. Other own
// members are released.
func (h *Handle) Properties(ctx context.Context) ([]jquery.Handle, error) {
	if h.obj == nil || h.obj.ObjectID == "" {
		return []jquery.Handle{}, nil
	}
	page := h.page.page.Context(ctx)
	res, err := proto.RuntimeGetProperties{ObjectID: h.obj.ObjectID, OwnProperties: true}.Call(page)
	if err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, exceptionError(res.ExceptionDetails)
	}

	members, rest := indexMembers(res.Result)
	for _, obj := range rest {
		_ = proto.RuntimeReleaseObject{ObjectID: obj.ObjectID}.Call(page)
	}
	out := make([]jquery.Handle, len(members))
	for i, obj := range members {
		out[i] = h.page.handle(obj)
	}
	return out, nil
}

// indexMembers splits property descriptors into index members, sorted by
// index, and the remaining remote objects that need releasing.
func indexMembers(props []*proto.RuntimePropertyDescriptor) ([]*proto.RuntimeRemoteObject, []*proto.RuntimeRemoteObject) {
	type member struct {
		index int
		obj   *proto.RuntimeRemoteObject
	}
	var members []member
	var rest []*proto.RuntimeRemoteObject
	for _, p := range props {
		if p.Value == nil {
			continue
		}
		i, err := strconv.Atoi(p.Name)
		if err != nil || i < 0 {
			if p.Value.ObjectID != "" {
				rest = append(rest, p.Value)
			}
			continue
		}
		members = append(members, member{i, p.Value})
	}
	sort.Slice(members, func(a, b int) bool { return members[a].index < members[b].index })

	out := make([]*proto.RuntimeRemoteObject, len(members))
	for k, m := range members {
		out[k] = m.obj
	}
	return out, rest
}

// JSONValue returns the object serialized by value.
func (h *Handle) JSONValue(ctx context.Context) (any, error) {
	obj := h.obj
	if obj != nil && obj.ObjectID != "" {
		res, err := proto.RuntimeCallFunctionOn{
			ObjectID:            obj.ObjectID,
			FunctionDeclaration: "function () { return this; }",
			ReturnByValue:       true,
		}.Call(h.page.page.Context(ctx))
		if err != nil {
			return nil, err
		}
		if res.ExceptionDetails != nil {
			return nil, exceptionError(res.ExceptionDetails)
		}
		obj = res.Result
	}
	return decodeValue(obj)
}

// decodeValue converts a by-value remote object into plain Go values.
// Undefined and values without a JSON form become nil.
func decodeValue(obj *proto.RuntimeRemoteObject) (any, error) {
	if obj == nil || obj.Type == proto.RuntimeRemoteObjectTypeUndefined || obj.UnserializableValue != "" {
		return nil, nil
	}
	var out any
	if err := sonic.UnmarshalString(obj.Value.JSON("", ""), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Release frees the remote object. Primitives hold no reference.
func (h *Handle) Release(ctx context.Context) error {
	if h.obj == nil || h.obj.ObjectID == "" {
		return nil
	}
	return proto.RuntimeReleaseObject{ObjectID: h.obj.ObjectID}.Call(h.page.page.Context(ctx))
}
