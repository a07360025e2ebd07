package ldclient

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

func TestNewUserSetsOnlyKey(t *testing.T) {
	user := NewUser("some-key")
	assert.Equal(t, "some-key", user.GetKey())
	assert.Nil(t, user.Name)
	assert.Nil(t, user.Anonymous)
	assert.False(t, user.GetAnonymous())
}

func TestNewAnonymousUser(t *testing.T) {
	user := NewAnonymousUser("some-key")
	assert.Equal(t, "some-key", user.GetKey())
	assert.True(t, user.GetAnonymous())
}

func TestUserBuilderSetsAllAttributes(t *testing.T) {
	user := NewUserBuilder("some-key").
		Secondary("other-key").
		IP("my-ip").
		Country("us").
		Email("test@example.com").
		FirstName("Lucy").
		LastName("Cat").
		Avatar("my-avatar").
		Name("Lucy Cat").
		Anonymous(false).
		Custom("my-attr", ldvalue.Bool(true)).
		Build()

	assert.Equal(t, "some-key", user.GetKey())
	assert.Equal(t, ldvalue.String("other-key"), user.valueOf("secondary"))
	assert.Equal(t, ldvalue.String("my-ip"), user.valueOf("ip"))
	assert.Equal(t, ldvalue.String("us"), user.valueOf("country"))
	assert.Equal(t, ldvalue.String("test@example.com"), user.valueOf("email"))
	assert.Equal(t, ldvalue.String("Lucy"), user.valueOf("firstName"))
	assert.Equal(t, ldvalue.String("Cat"), user.valueOf("lastName"))
	assert.Equal(t, ldvalue.String("my-avatar"), user.valueOf("avatar"))
	assert.Equal(t, ldvalue.String("Lucy Cat"), user.valueOf("name"))
	assert.Equal(t, ldvalue.Bool(false), user.valueOf("anonymous"))
	assert.Equal(t, ldvalue.Bool(true), user.valueOf("my-attr"))
}

func TestUserAttributesAreNullWhenUnset(t *testing.T) {
	user := NewUser("some-key")
	for _, attr := range append(builtinAttributes, "anonymous", "no-such-attr") {
		assert.True(t, user.valueOf(attr).IsNull(), "attribute %s should be null", attr)
	}
}

func TestUserBuilderCanMakeAttributesPrivate(t *testing.T) {
	user := NewUserBuilder("some-key").
		Name("Lucy").
		Email("test@example.com").AsPrivateAttribute().
		Custom("my-attr", ldvalue.String("value")).AsPrivateAttribute().
		Build()

	sort.Strings(user.PrivateAttributeNames)
	assert.Equal(t, []string{"email", "my-attr"}, user.PrivateAttributeNames)
	// Private attributes are still present on the user for evaluation.
	assert.Equal(t, ldvalue.String("test@example.com"), user.valueOf("email"))
}

func TestUserWithEmptyKey(t *testing.T) {
	user := User{}
	assert.Equal(t, "", user.GetKey())
	assert.True(t, user.valueOf("key").IsNull())
}

func TestGetCustom(t *testing.T) {
	user := NewUserBuilder("some-key").Custom("a", ldvalue.Int(1)).Build()
	value, ok := user.GetCustom("a")
	assert.True(t, ok)
	assert.Equal(t, ldvalue.Int(1), value)

	_, ok = user.GetCustom("b")
	assert.False(t, ok)

	_, ok = NewUser("some-key").GetCustom("a")
	assert.False(t, ok)
}
