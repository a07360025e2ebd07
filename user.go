package ldclient

import (
	"encoding/json"

	"gopkg.in/launchdarkly/go-server-sdk.v4/ldvalue"
)

// A User contains the attributes of an end user of your application. The only
// mandatory property is the Key, which must uniquely identify each user. For
// authenticated users this may be a username or e-mail address; for anonymous
// users it could be an IP address or session ID.
//
// Besides the mandatory key, User supports two kinds of optional attributes:
// built-in attributes (such as Name and Country) and custom attributes, both
// of which can be referenced in flag rules.
//
// The preferred way to construct a User is with NewUser, NewAnonymousUser, or
// NewUserBuilder. Users should be treated as immutable once constructed; do
// not modify any fields or maps after passing the User to an SDK method.
type User struct {
	// Key is the unique key of the user.
	Key *string `json:"key,omitempty"`
	// Secondary is the secondary key of the user. If set, it is combined with
	// the primary bucketing attribute to further distinguish between users
	// who are otherwise identical according to that attribute.
	Secondary *string `json:"secondary,omitempty"`
	// Ip is the IP address attribute of the user.
	Ip *string `json:"ip,omitempty"`
	// Country is the country attribute of the user.
	Country *string `json:"country,omitempty"`
	// Email is the email address attribute of the user.
	Email *string `json:"email,omitempty"`
	// FirstName is the first name attribute of the user.
	FirstName *string `json:"firstName,omitempty"`
	// LastName is the last name attribute of the user.
	LastName *string `json:"lastName,omitempty"`
	// Avatar is the avatar URL attribute of the user.
	Avatar *string `json:"avatar,omitempty"`
	// Name is the full name attribute of the user.
	Name *string `json:"name,omitempty"`
	// Anonymous indicates whether the user is anonymous. Anonymous users are
	// not indexed on the dashboard.
	Anonymous *bool `json:"anonymous,omitempty"`
	// Custom is the user's map of custom attribute names and values.
	Custom *map[string]ldvalue.Value `json:"custom,omitempty"`

	// PrivateAttributes contains the names of attributes that were present on
	// the user but redacted before being sent in analytics events. It is set
	// only on the redacted copies produced by the event pipeline.
	PrivateAttributes []string `json:"privateAttrs,omitempty"`

	// PrivateAttributeNames is the list of attribute names (built-in or
	// custom) to keep private for this user: they can still be used in flag
	// rules, but their values are redacted from analytics events. The key
	// and anonymous attributes cannot be made private. This field itself is
	// never serialized.
	PrivateAttributeNames []string `json:"-"`
}

// NewUser creates a new user identified by the given key.
func NewUser(key string) User {
	return User{Key: &key}
}

// NewAnonymousUser creates a new anonymous user identified by the given key.
func NewAnonymousUser(key string) User {
	anonymous := true
	return User{Key: &key, Anonymous: &anonymous}
}

// GetKey returns the unique key of the user, or an empty string if no key was
// set.
func (u User) GetKey() string {
	if u.Key == nil {
		return ""
	}
	return *u.Key
}

// GetAnonymous returns the anonymous attribute of the user.
func (u User) GetAnonymous() bool {
	return u.Anonymous != nil && *u.Anonymous
}

// GetCustom returns a custom attribute of the user by name. The second return
// value indicates whether the attribute was set.
func (u User) GetCustom(attrName string) (ldvalue.Value, bool) {
	if u.Custom == nil {
		return ldvalue.Null(), false
	}
	value, found := (*u.Custom)[attrName]
	return value, found
}

// String returns a simple string representation of a user.
func (u User) String() string {
	bytes, _ := json.Marshal(u)
	return string(bytes)
}

// valueOf is used in evaluations to look up any attribute, built-in or
// custom, by name. A null result means the attribute is not set.
func (u User) valueOf(attr string) ldvalue.Value {
	switch attr {
	case "key":
		if u.Key == nil {
			return ldvalue.Null()
		}
		return ldvalue.String(*u.Key)
	case "secondary":
		return optStringValue(u.Secondary)
	case "ip":
		return optStringValue(u.Ip)
	case "country":
		return optStringValue(u.Country)
	case "email":
		return optStringValue(u.Email)
	case "firstName":
		return optStringValue(u.FirstName)
	case "lastName":
		return optStringValue(u.LastName)
	case "avatar":
		return optStringValue(u.Avatar)
	case "name":
		return optStringValue(u.Name)
	case "anonymous":
		if u.Anonymous == nil {
			return ldvalue.Null()
		}
		return ldvalue.Bool(*u.Anonymous)
	}
	value, _ := u.GetCustom(attr)
	return value
}

func optStringValue(s *string) ldvalue.Value {
	if s == nil {
		return ldvalue.Null()
	}
	return ldvalue.String(*s)
}

// UserBuilder is a mutable object that uses the builder pattern to specify
// properties for a User. Obtain one by calling NewUserBuilder, call setter
// methods, then call Build:
//
//	user := ldclient.NewUserBuilder("user-key").Name("Bob").Build()
//
// Setters for attributes that can be marked private return
// UserBuilderCanMakeAttributePrivate, so AsPrivateAttribute can be chained:
//
//	user := ldclient.NewUserBuilder("user-key").Name("Bob").AsPrivateAttribute().Build()
//
// A UserBuilder should not be used by multiple goroutines at once.
type UserBuilder interface {
	Key(value string) UserBuilder
	Secondary(value string) UserBuilderCanMakeAttributePrivate
	IP(value string) UserBuilderCanMakeAttributePrivate
	Country(value string) UserBuilderCanMakeAttributePrivate
	Email(value string) UserBuilderCanMakeAttributePrivate
	FirstName(value string) UserBuilderCanMakeAttributePrivate
	LastName(value string) UserBuilderCanMakeAttributePrivate
	Avatar(value string) UserBuilderCanMakeAttributePrivate
	Name(value string) UserBuilderCanMakeAttributePrivate
	Anonymous(value bool) UserBuilder
	Custom(name string, value ldvalue.Value) UserBuilderCanMakeAttributePrivate
	Build() User
}

// UserBuilderCanMakeAttributePrivate is an extension of UserBuilder that
// allows the last attribute that was set to be marked private with
// AsPrivateAttribute.
type UserBuilderCanMakeAttributePrivate interface {
	UserBuilder
	// AsPrivateAttribute marks the last attribute that was set as private:
	// its value will be redacted from analytics events produced for this
	// user. The key and anonymous attributes cannot be private.
	AsPrivateAttribute() UserBuilder
}

type userBuilderImpl struct {
	key          string
	secondary    *string
	ip           *string
	country      *string
	email        *string
	firstName    *string
	lastName     *string
	avatar       *string
	name         *string
	anonymous    bool
	hasAnonymous bool
	custom       map[string]ldvalue.Value
	privateAttrs map[string]bool
}

type userBuilderCanMakeAttributePrivate struct {
	builder  *userBuilderImpl
	attrName string
}

// NewUserBuilder constructs a new UserBuilder, specifying the user key.
func NewUserBuilder(key string) UserBuilder {
	return &userBuilderImpl{key: key}
}

func (b *userBuilderImpl) setString(dest **string, value string, attrName string) UserBuilderCanMakeAttributePrivate {
	s := value
	*dest = &s
	return &userBuilderCanMakeAttributePrivate{builder: b, attrName: attrName}
}

func (b *userBuilderImpl) Key(value string) UserBuilder {
	b.key = value
	return b
}

func (b *userBuilderImpl) Secondary(value string) UserBuilderCanMakeAttributePrivate {
	return b.setString(&b.secondary, value, "secondary")
}

func (b *userBuilderImpl) IP(value string) UserBuilderCanMakeAttributePrivate {
	return b.setString(&b.ip, value, "ip")
}

func (b *userBuilderImpl) Country(value string) UserBuilderCanMakeAttributePrivate {
	return b.setString(&b.country, value, "country")
}

func (b *userBuilderImpl) Email(value string) UserBuilderCanMakeAttributePrivate {
	return b.setString(&b.email, value, "email")
}

func (b *userBuilderImpl) FirstName(value string) UserBuilderCanMakeAttributePrivate {
	return b.setString(&b.firstName, value, "firstName")
}

func (b *userBuilderImpl) LastName(value string) UserBuilderCanMakeAttributePrivate {
	return b.setString(&b.lastName, value, "lastName")
}

func (b *userBuilderImpl) Avatar(value string) UserBuilderCanMakeAttributePrivate {
	return b.setString(&b.avatar, value, "avatar")
}

func (b *userBuilderImpl) Name(value string) UserBuilderCanMakeAttributePrivate {
	return b.setString(&b.name, value, "name")
}

func (b *userBuilderImpl) Anonymous(value bool) UserBuilder {
	b.anonymous = value
	b.hasAnonymous = true
	return b
}

func (b *userBuilderImpl) Custom(name string, value ldvalue.Value) UserBuilderCanMakeAttributePrivate {
	if b.custom == nil {
		b.custom = make(map[string]ldvalue.Value)
	}
	b.custom[name] = value
	return &userBuilderCanMakeAttributePrivate{builder: b, attrName: name}
}

func (b *userBuilderImpl) Build() User {
	key := b.key
	u := User{
		Key:       &key,
		Secondary: b.secondary,
		Ip:        b.ip,
		Country:   b.country,
		Email:     b.email,
		FirstName: b.firstName,
		LastName:  b.lastName,
		Avatar:    b.avatar,
		Name:      b.name,
	}
	if b.hasAnonymous {
		value := b.anonymous
		u.Anonymous = &value
	}
	if len(b.custom) > 0 {
		c := make(map[string]ldvalue.Value, len(b.custom))
		for k, v := range b.custom {
			c[k] = v
		}
		u.Custom = &c
	}
	if len(b.privateAttrs) > 0 {
		a := make([]string, 0, len(b.privateAttrs))
		for name, private := range b.privateAttrs {
			if private {
				a = append(a, name)
			}
		}
		u.PrivateAttributeNames = a
	}
	return u
}

func (b *userBuilderCanMakeAttributePrivate) AsPrivateAttribute() UserBuilder {
	if b.builder.privateAttrs == nil {
		b.builder.privateAttrs = make(map[string]bool)
	}
	b.builder.privateAttrs[b.attrName] = true
	return b.builder
}

func (b *userBuilderCanMakeAttributePrivate) Key(value string) UserBuilder {
	return b.builder.Key(value)
}

func (b *userBuilderCanMakeAttributePrivate) Secondary(value string) UserBuilderCanMakeAttributePrivate {
	return b.builder.Secondary(value)
}

func (b *userBuilderCanMakeAttributePrivate) IP(value string) UserBuilderCanMakeAttributePrivate {
	return b.builder.IP(value)
}

func (b *userBuilderCanMakeAttributePrivate) Country(value string) UserBuilderCanMakeAttributePrivate {
	return b.builder.Country(value)
}

func (b *userBuilderCanMakeAttributePrivate) Email(value string) UserBuilderCanMakeAttributePrivate {
	return b.builder.Email(value)
}

func (b *userBuilderCanMakeAttributePrivate) FirstName(value string) UserBuilderCanMakeAttributePrivate {
	return b.builder.FirstName(value)
}

func (b *userBuilderCanMakeAttributePrivate) LastName(value string) UserBuilderCanMakeAttributePrivate {
	return b.builder.LastName(value)
}

func (b *userBuilderCanMakeAttributePrivate) Avatar(value string) UserBuilderCanMakeAttributePrivate {
	return b.builder.Avatar(value)
}

func (b *userBuilderCanMakeAttributePrivate) Name(value string) UserBuilderCanMakeAttributePrivate {
	return b.builder.Name(value)
}

func (b *userBuilderCanMakeAttributePrivate) Anonymous(value bool) UserBuilder {
	return b.builder.Anonymous(value)
}

func (b *userBuilderCanMakeAttributePrivate) Custom(name string, value ldvalue.Value) UserBuilderCanMakeAttributePrivate {
	return b.builder.Custom(name, value)
}

func (b *userBuilderCanMakeAttributePrivate) Build() User {
	return b.builder.Build()
}
