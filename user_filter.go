package ldclient

import (
	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

// builtinAttributes is the list of user attribute names, other than key and
// anonymous, that can be redacted from analytics events.
var builtinAttributes = []string{
	"avatar",
	"country",
	"email",
	"firstName",
	"ip",
	"lastName",
	"name",
	"secondary",
}

// scrubUser returns a copy of the user with all private attributes removed
// from the body and their names recorded in PrivateAttributes. An attribute
// is private if allAttributesPrivate is set, or if its name appears in
// globalPrivateAttributes (from the configuration) or in the user's own
// PrivateAttributeNames. The key and anonymous attributes are never redacted.
func scrubUser(user User, allAttributesPrivate bool, globalPrivateAttributes []string) User {
	if len(user.PrivateAttributeNames) == 0 && len(globalPrivateAttributes) == 0 && !allAttributesPrivate {
		user.PrivateAttributeNames = nil
		return user
	}

	isPrivate := map[string]bool{}
	for _, n := range globalPrivateAttributes {
		isPrivate[n] = true
	}
	for _, n := range user.PrivateAttributeNames {
		isPrivate[n] = true
	}

	scrubbed := user
	scrubbed.PrivateAttributeNames = nil
	var privateAttrs []string

	if user.Custom != nil {
		custom := make(map[string]ldvalue.Value, len(*user.Custom))
		for k, v := range *user.Custom {
			if allAttributesPrivate || isPrivate[k] {
				privateAttrs = append(privateAttrs, k)
			} else {
				custom[k] = v
			}
		}
		scrubbed.Custom = &custom
	}

	for _, name := range builtinAttributes {
		if allAttributesPrivate || isPrivate[name] {
			if attr := scrubbed.builtinAttributeRef(name); *attr != nil {
				privateAttrs = append(privateAttrs, name)
				*attr = nil
			}
		}
	}

	scrubbed.PrivateAttributes = privateAttrs
	return scrubbed
}

// builtinAttributeRef returns a pointer to the field holding a redactable
// built-in attribute, so that scrubUser can clear it in place.
func (u *User) builtinAttributeRef(name string) **string {
	switch name {
	case "avatar":
		return &u.Avatar
	case "country":
		return &u.Country
	case "email":
		return &u.Email
	case "firstName":
		return &u.FirstName
	case "ip":
		return &u.Ip
	case "lastName":
		return &u.LastName
	case "name":
		return &u.Name
	case "secondary":
		return &u.Secondary
	}
	return nil
}
