package chrome

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/juiceqa/puppeteer-jquery/internal/jquery"
)

func TestIndexMembers(t *testing.T) {
	obj := func(id string) *proto.RuntimeRemoteObject {
		return &proto.RuntimeRemoteObject{
			Type:     proto.RuntimeRemoteObjectTypeObject,
			Subtype:  proto.RuntimeRemoteObjectSubtypeNode,
			ObjectID: proto.RuntimeRemoteObjectID(id),
		}
	}
	props := []*proto.RuntimePropertyDescriptor{
		{Name: "10", Value: obj("ten")},
		{Name: "2", Value: obj("two")},
		{Name: "length", Value: &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(11)}},
		{Name: "prevObject", Value: obj("prev")},
		{Name: "0", Value: obj("zero")},
		{Name: "getter"},
	}

	members, rest := indexMembers(props)

	require.Len(t, members, 3)
	assert.Equal(t, proto.RuntimeRemoteObjectID("zero"), members[0].ObjectID)
	assert.Equal(t, proto.RuntimeRemoteObjectID("two"), members[1].ObjectID)
	assert.Equal(t, proto.RuntimeRemoteObjectID("ten"), members[2].ObjectID)
	require.Len(t, rest, 1)
	assert.Equal(t, proto.RuntimeRemoteObjectID("prev"), rest[0].ObjectID)
}

func TestIsElement(t *testing.T) {
	assert.True(t, isElement(&proto.RuntimeRemoteObject{
		Type:    proto.RuntimeRemoteObjectTypeObject,
		Subtype: proto.RuntimeRemoteObjectSubtypeNode,
	}))
	assert.False(t, isElement(&proto.RuntimeRemoteObject{
		Type:    proto.RuntimeRemoteObjectTypeObject,
		Subtype: proto.RuntimeRemoteObjectSubtypeArray,
	}))
	assert.False(t, isElement(&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeString}))
	assert.False(t, isElement(nil))
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name string
		obj  *proto.RuntimeRemoteObject
		want any
	}{
		{"nil", nil, nil},
		{"undefined", &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeUndefined}, nil},
		{"nan", &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeNumber, UnserializableValue: "NaN"}, nil},
		{"string", &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("Hello")}, "Hello"},
		{"number", &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(3)}, float64(3)},
		{"array", &proto.RuntimeRemoteObject{
			Type:  proto.RuntimeRemoteObjectTypeObject,
			Value: gson.New([]any{"a", true}),
		}, []any{"a", true}},
		{"null", &proto.RuntimeRemoteObject{
			Type:    proto.RuntimeRemoteObjectTypeObject,
			Subtype: proto.RuntimeRemoteObjectSubtypeNull,
			Value:   gson.New(nil),
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeValue(tt.obj)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExceptionError(t *testing.T) {
	err := exceptionError(&proto.RuntimeExceptionDetails{
		Text:      "Uncaught",
		Exception: &proto.RuntimeRemoteObject{Description: "ReferenceError: pjq_x is not defined\n    at <anonymous>:1:1"},
	})
	assert.ErrorIs(t, jquery.Classify(err, "pjq_x"), jquery.ErrNotInjected)

	err = exceptionError(&proto.RuntimeExceptionDetails{Text: "Uncaught SyntaxError"})
	assert.EqualError(t, err, "Uncaught SyntaxError")
}

func TestArgumentsRejectForeignHandles(t *testing.T) {
	p := &Page{}
	other := &Page{}
	obj := &proto.RuntimeRemoteObject{ObjectID: "1"}

	args, err := p.arguments([]any{&Handle{page: p, obj: obj}, "x", 2})
	require.NoError(t, err)
	assert.Equal(t, []any{obj, "x", 2}, args)

	_, err = p.arguments([]any{&Handle{page: other, obj: obj}})
	assert.ErrorIs(t, err, ErrForeignHandle)
}

func TestWaitFunction(t *testing.T) {
	assert.Equal(t, "() => pjq_x('.a').toArray().length > 0", waitFunction("pjq_x('.a').toArray().length > 0"))
}

// TestBrowser runs against a real browser when PJQ_BROWSER is set to
// "launch" or to a DevTools websocket URL.
func TestBrowser(t *testing.T) {
	target := os.Getenv("PJQ_BROWSER")
	if target == "" {
		t.Skip("PJQ_BROWSER not set")
	}
	opts := Options{Headless: true}
	if target != "launch" {
		opts.URL = target
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	browser, err := Launch(ctx, opts)
	require.NoError(t, err)
	defer browser.Close()

	page, err := browser.NewPage(ctx, "")
	require.NoError(t, err)
	defer page.Close()
	assert.Equal(t, 1, browser.Pages())

	require.NoError(t, page.SetContent(ctx, `<ul><li class="item">a</li><li class="item">skip</li><li class="item">b</li></ul>`))

	els, err := page.JQuery(".item").
		FilterFunc(`function (i, el) { return jQuery(el).text() !== "skip"; }`).
		Exec(ctx)
	require.NoError(t, err)
	require.Len(t, els, 2)
	defer jquery.Release(ctx, els...)

	text, err := page.JQuery(".item").Last().Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", text)

	// Sizzle extensions need the release build
	first, err := page.JQuery("li:first").Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first)
	odd, err := page.JQuery("li:odd").Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "skip", odd)

	_, err = page.Evaluate(ctx, `setTimeout(function () {
		var p = document.createElement("p"); p.className = "late"; document.body.appendChild(p);
	}, 100)`)
	require.NoError(t, err)
	late, err := page.WaitForJQuery(ctx, ".late", jquery.WaitOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Len(t, late, 1)

	_, err = page.JQuery("li[").Exec(ctx)
	var execErr *jquery.ExecError
	assert.True(t, errors.As(err, &execErr))
}
