package ldclient

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

func userWithAllBuiltins() User {
	return User{
		Key:       strPtr("user-key"),
		FirstName: strPtr("sam"),
		LastName:  strPtr("smith"),
		Name:      strPtr("sammy"),
		Country:   strPtr("freedonia"),
		Avatar:    strPtr("my-avatar"),
		Ip:        strPtr("123.456.789"),
		Email:     strPtr("me@example.com"),
		Secondary: strPtr("abcdef"),
	}
}

func TestScrubUserWithNoPrivateAttributesIsUnchanged(t *testing.T) {
	user := userWithAllBuiltins()
	scrubbed := scrubUser(user, false, nil)
	assert.Equal(t, user, scrubbed)
	assert.Nil(t, scrubbed.PrivateAttributes)
}

func TestScrubUserPrivateBuiltinAttributesPerUser(t *testing.T) {
	user := userWithAllBuiltins()
	for _, attr := range builtinAttributes {
		user.PrivateAttributeNames = []string{attr}
		scrubbed := scrubUser(user, false, nil)
		assert.Equal(t, []string{attr}, scrubbed.PrivateAttributes)
		assert.True(t, scrubbed.valueOf(attr).IsNull(), "attribute %s should have been removed", attr)
	}
}

func TestScrubUserGlobalPrivateBuiltinAttributes(t *testing.T) {
	user := userWithAllBuiltins()
	for _, attr := range builtinAttributes {
		scrubbed := scrubUser(user, false, []string{attr})
		assert.Equal(t, []string{attr}, scrubbed.PrivateAttributes)
		assert.True(t, scrubbed.valueOf(attr).IsNull(), "attribute %s should have been removed", attr)
	}
}

func TestScrubUserPrivateCustomAttribute(t *testing.T) {
	userKey := "userKey"
	user := User{
		Key:                   &userKey,
		PrivateAttributeNames: []string{"my-secret-attr"},
		Custom: &map[string]ldvalue.Value{
			"my-secret-attr": ldvalue.String("my secret value"),
			"ok-attr":        ldvalue.String("an OK value"),
		}}

	scrubbed := scrubUser(user, false, nil)

	assert.Equal(t, []string{"my-secret-attr"}, scrubbed.PrivateAttributes)
	assert.NotContains(t, *scrubbed.Custom, "my-secret-attr")
	assert.Contains(t, *scrubbed.Custom, "ok-attr")
}

func TestScrubUserAllAttributesPrivate(t *testing.T) {
	userKey := "userKey"
	user := userWithAllBuiltins()
	user.Key = &userKey
	custom := map[string]ldvalue.Value{"my-secret-attr": ldvalue.String("my secret value")}
	user.Custom = &custom

	scrubbed := scrubUser(user, true, nil)
	sort.Strings(scrubbed.PrivateAttributes)
	expectedAttributes := append([]string{}, builtinAttributes...)
	expectedAttributes = append(expectedAttributes, "my-secret-attr")
	sort.Strings(expectedAttributes)
	assert.Equal(t, expectedAttributes, scrubbed.PrivateAttributes)

	scrubbed.PrivateAttributes = nil
	assert.Equal(t, User{Key: &userKey, Custom: &map[string]ldvalue.Value{}}, scrubbed)
}

func TestScrubUserAnonymousAttributeCannotBePrivate(t *testing.T) {
	userKey := "userKey"
	anon := true
	user := User{Key: &userKey, Anonymous: &anon}

	scrubbed := scrubUser(user, true, nil)
	assert.Equal(t, user, scrubbed)
}

func TestScrubUserKeyCannotBePrivate(t *testing.T) {
	user := User{Key: strPtr("userKey"), PrivateAttributeNames: []string{"key"}}

	scrubbed := scrubUser(user, false, nil)
	assert.Equal(t, "userKey", scrubbed.GetKey())
	assert.Nil(t, scrubbed.PrivateAttributes)
}

func TestScrubUserDoesNotRedactUnsetAttributes(t *testing.T) {
	user := User{Key: strPtr("userKey"), Name: strPtr("sam")}

	scrubbed := scrubUser(user, true, nil)
	assert.Equal(t, []string{"name"}, scrubbed.PrivateAttributes)
}
