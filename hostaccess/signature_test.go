package hostaccess

import (
	"testing"

	"github.com/reglet-dev/hostbridge/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignature_Field(t *testing.T) {
	sig, err := ParseSignature("I")
	require.NoError(t, err)
	assert.False(t, sig.Method)
	assert.Empty(t, sig.Params)
	assert.Equal(t, entities.TagInt, sig.Return.Tag)

	sig, err = ParseSignature("Landroid/os/Handler;")
	require.NoError(t, err)
	assert.Equal(t, Type{Tag: entities.TagObject, Class: "android/os/Handler"}, sig.Return)
}

func TestParseSignature_Method(t *testing.T) {
	sig, err := ParseSignature("(Lcom/node/v8/V8Context;JJ)Lcom/node/v8/V8Runnable;")
	require.NoError(t, err)

	assert.True(t, sig.Method)
	require.Len(t, sig.Params, 3)
	assert.Equal(t, "com/node/v8/V8Context", sig.Params[0].Class)
	assert.Equal(t, entities.TagLong, sig.Params[1].Tag)
	assert.Equal(t, entities.TagLong, sig.Params[2].Tag)
	assert.Equal(t, "com/node/v8/V8Runnable", sig.Return.Class)
}

func TestParseSignature_VoidAndArrays(t *testing.T) {
	sig, err := ParseSignature("(I)V")
	require.NoError(t, err)
	assert.Equal(t, entities.TagVoid, sig.Return.Tag)

	sig, err = ParseSignature("([B[Ljava/lang/String;)Z")
	require.NoError(t, err)
	require.Len(t, sig.Params, 2)
	assert.Equal(t, "[B", sig.Params[0].Class)
	assert.Equal(t, "[Ljava/lang/String;", sig.Params[1].Class)
	assert.Equal(t, entities.TagBool, sig.Return.Tag)

	sig, err = ParseSignature("()V")
	require.NoError(t, err)
	assert.Empty(t, sig.Params)
}

func TestParseSignature_Malformed(t *testing.T) {
	tests := map[string]string{
		"empty":              "",
		"void field":         "V",
		"void parameter":     "(V)V",
		"unterminated":       "(IJ",
		"missing return":     "(I)",
		"unterminated class": "(Ljava/lang/Object)V",
		"empty class":        "L;",
		"trailing":           "II",
		"unrepresentable":    "(D)V",
		"unknown":            "Q",
	}

	for name, s := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSignature(s)
			assert.ErrorIs(t, err, ErrMalformedSignature)
		})
	}
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "long", Type{Tag: entities.TagLong}.String())
	assert.Equal(t, "java/lang/Runnable", Type{Tag: entities.TagObject, Class: "java/lang/Runnable"}.String())
}
