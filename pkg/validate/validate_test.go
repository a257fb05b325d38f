package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/pkg/validate"
)

type money struct {
	Amount   int64  `json:"amount" validate:"gte=0"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

type input struct {
	Name   string   `json:"name" validate:"required,max=10"`
	URL    string   `json:"launch_url" validate:"omitempty,url"`
	Period string   `json:"billing_period" validate:"oneof=monthly yearly"`
	Tags   []string `json:"tags" validate:"unique"`
	Price  money    `json:"price"`
	Hidden string   `json:"-"`
}

func TestValidatorStruct(t *testing.T) {
	t.Parallel()

	v := validate.New()

	t.Run("valid input", func(t *testing.T) {
		t.Parallel()
		err := v.Struct(input{Name: "Pro", Period: "monthly", Price: money{Currency: "usd"}})
		assert.NoError(t, err)
	})

	t.Run("collects field errors by json name", func(t *testing.T) {
		t.Parallel()
		err := v.Struct(input{
			URL:    "not a url",
			Period: "weekly",
			Tags:   []string{"a", "a"},
			Price:  money{Amount: -1, Currency: "us"},
		})
		require.Error(t, err)

		var fe validate.FieldErrors
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, []string{"is required"}, fe["name"])
		assert.Equal(t, []string{"must be a valid URL"}, fe["launch_url"])
		assert.Equal(t, []string{"must be one of: monthly, yearly"}, fe["billing_period"])
		assert.Equal(t, []string{"must not contain duplicates"}, fe["tags"])
		assert.Equal(t, []string{"must be greater than or equal to 0"}, fe["price.amount"])
		assert.Equal(t, []string{"must be exactly 3 characters"}, fe["price.currency"])
		assert.Contains(t, err.Error(), "billing_period")
	})

	t.Run("non struct input", func(t *testing.T) {
		t.Parallel()
		err := v.Struct("nope")
		require.Error(t, err)
		_, isFieldErrors := err.(validate.FieldErrors)
		assert.False(t, isFieldErrors)
	})
}

func TestFieldErrors(t *testing.T) {
	t.Parallel()

	fe := validate.FieldErrors{}
	assert.NoError(t, fe.OrNil())

	fe.Add("tokens", "must be -1 or greater")
	fe.Add("tokens", "is required")
	require.Error(t, fe.OrNil())
	assert.Equal(t, "validation failed: tokens: must be -1 or greater, is required", fe.Error())
	assert.Len(t, fe.Fields()["tokens"], 2)
}
