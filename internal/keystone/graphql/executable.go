package graphql

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphql
var schemaSDL string

// Schema binds the SDL in schema.graphql to a Resolver. It implements
// gqlgen's ExecutableSchema in the shape gqlgen's generator emits: one
// marshal function per object type driven by graphql.CollectFields.
type Schema struct {
	schema   *ast.Schema
	resolver *Resolver
}

var _ graphql.ExecutableSchema = (*Schema)(nil)

// NewSchema parses the embedded SDL and binds it to r.
func NewSchema(r *Resolver) (*Schema, error) {
	s, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSDL})
	if err != nil {
		return nil, fmt.Errorf("load graphql schema: %w", err)
	}
	return &Schema{schema: s, resolver: r}, nil
}

func (s *Schema) Schema() *ast.Schema { return s.schema }

func (s *Schema) Complexity(_ context.Context, _, _ string, _ int, _ map[string]any) (int, bool) {
	return 0, false
}

func (s *Schema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	ec := &executionContext{OperationContext: opCtx, res: s.resolver}
	sel := opCtx.Operation.SelectionSet

	switch opCtx.Operation.Operation {
	case ast.Query:
		return once(func(ctx context.Context) graphql.Marshaler { return ec._Query(ctx, sel) })
	case ast.Mutation:
		return once(func(ctx context.Context) graphql.Marshaler { return ec._Mutation(ctx, sel) })
	case ast.Subscription:
		return ec._Subscription(sel)
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}
}

// once adapts a single result to gqlgen's response stream, which is drained
// until it returns nil.
func once(run func(ctx context.Context) graphql.Marshaler) graphql.ResponseHandler {
	var done bool
	return func(ctx context.Context) *graphql.Response {
		if done {
			return nil
		}
		done = true
		var buf bytes.Buffer
		run(ctx).MarshalGQL(&buf)
		return &graphql.Response{Data: buf.Bytes()}
	}
}

type executionContext struct {
	*graphql.OperationContext
	res *Resolver
}

var (
	queryImplementors        = []string{"Query"}
	mutationImplementors     = []string{"Mutation"}
	subscriptionImplementors = []string{"Subscription"}
	userImplementors         = []string{"User"}
	userPageImplementors     = []string{"UserPage"}
	authPayloadImplementors  = []string{"AuthPayload"}
	userEventImplementors    = []string{"UserEvent"}
)

// resolveField runs one root resolver under its field context. An error is
// reported against the field's path and yields null.
func resolveField[T any](
	ctx context.Context,
	ec *executionContext,
	object string,
	field graphql.CollectedField,
	resolve func(ctx context.Context, args map[string]any) (T, error),
	marshal func(ctx context.Context, v T) graphql.Marshaler,
) (ret graphql.Marshaler) {
	fc := &graphql.FieldContext{
		Object:     object,
		Field:      field,
		Args:       field.ArgumentMap(ec.Variables),
		IsMethod:   true,
		IsResolver: true,
	}
	ctx = graphql.WithFieldContext(ctx, fc)
	defer func() {
		if r := recover(); r != nil {
			graphql.AddError(ctx, ec.Recover(ctx, r))
			ret = graphql.Null
		}
	}()

	v, err := resolve(ctx, fc.Args)
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	return marshal(ctx, v)
}

// ---- Query ----

func (ec *executionContext) _Query(ctx context.Context, sel ast.SelectionSet) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, queryImplementors)
	out := graphql.NewFieldSet(fields)
	invalid := false
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Query")
		case "__schema", "__type":
			out.Values[i] = resolveField(ctx, ec, "Query", field,
				func(context.Context, map[string]any) (any, error) { return nil, errIntrospectionDisabled },
				func(context.Context, any) graphql.Marshaler { return graphql.Null })
		case "me":
			out.Values[i] = resolveField(ctx, ec, "Query", field,
				func(ctx context.Context, _ map[string]any) (*domain.User, error) { return ec.res.Me(ctx) },
				ec.marshalOUser)
		case "user":
			out.Values[i] = resolveField(ctx, ec, "Query", field,
				func(ctx context.Context, args map[string]any) (*domain.User, error) {
					return ec.res.User(ctx, argString(args, "id"))
				},
				ec.marshalOUser)
		case "users":
			out.Values[i] = resolveField(ctx, ec, "Query", field,
				func(ctx context.Context, args map[string]any) (*domain.UserPage, error) {
					return ec.res.UserList(ctx, argInt(args, "limit"), argInt(args, "offset"))
				},
				func(ctx context.Context, p *domain.UserPage) graphql.Marshaler {
					return ec._UserPage(ctx, field.Selections, p)
				})
			invalid = invalid || out.Values[i] == graphql.Null
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	if invalid {
		return graphql.Null
	}
	return out
}

// ---- Mutation ----

// _Mutation runs root fields serially. Every mutation field is non-null, so
// the first failure nulls the whole result and nothing after it runs.
func (ec *executionContext) _Mutation(ctx context.Context, sel ast.SelectionSet) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, mutationImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Mutation")
		case "login":
			out.Values[i] = resolveField(ctx, ec, "Mutation", field,
				func(ctx context.Context, args map[string]any) (*AuthPayload, error) {
					return ec.res.Login(ctx, argString(args, "email"), argString(args, "password"))
				},
				ec.authPayload(field))
		case "register":
			out.Values[i] = resolveField(ctx, ec, "Mutation", field,
				func(ctx context.Context, args map[string]any) (*domain.User, error) {
					return ec.res.Register(ctx, argString(args, "email"), argString(args, "name"), argString(args, "password"))
				},
				ec.user(field))
		case "logout":
			out.Values[i] = resolveField(ctx, ec, "Mutation", field,
				func(ctx context.Context, _ map[string]any) (bool, error) { return ec.res.Logout(ctx) },
				marshalBoolean)
		case "refreshToken":
			out.Values[i] = resolveField(ctx, ec, "Mutation", field,
				func(ctx context.Context, args map[string]any) (*AuthPayload, error) {
					return ec.res.RefreshToken(ctx, argOptString(args, "refreshToken"))
				},
				ec.authPayload(field))
		case "updateUser":
			out.Values[i] = resolveField(ctx, ec, "Mutation", field,
				func(ctx context.Context, args map[string]any) (*domain.User, error) {
					var role *domain.Role
					if v := argOptString(args, "role"); v != nil {
						r := domain.Role(*v)
						role = &r
					}
					return ec.res.UpdateUser(ctx, argString(args, "id"), argOptString(args, "name"), role)
				},
				ec.user(field))
		case "deleteUser":
			out.Values[i] = resolveField(ctx, ec, "Mutation", field,
				func(ctx context.Context, args map[string]any) (bool, error) {
					return ec.res.DeleteUser(ctx, argString(args, "id"))
				},
				marshalBoolean)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
		if out.Values[i] == graphql.Null {
			return graphql.Null
		}
	}
	return out
}

// ---- Subscription ----

func (ec *executionContext) _Subscription(sel ast.SelectionSet) graphql.ResponseHandler {
	// Validation allows exactly one root field on a subscription.
	field := graphql.CollectFields(ec.OperationContext, sel, subscriptionImplementors)[0]
	switch field.Name {
	case "userEvents":
		return ec._Subscription_userEvents(field)
	default:
		panic("unknown field " + strconv.Quote(field.Name))
	}
}

// _Subscription_userEvents subscribes to the hub on the first pull and then
// yields one response per event until the operation's context ends.
func (ec *executionContext) _Subscription_userEvents(field graphql.CollectedField) graphql.ResponseHandler {
	var (
		started bool
		events  <-chan domain.Event
	)
	return func(ctx context.Context) *graphql.Response {
		fc := &graphql.FieldContext{
			Object:     "Subscription",
			Field:      field,
			Args:       field.ArgumentMap(ec.Variables),
			IsMethod:   true,
			IsResolver: true,
		}
		ctx = graphql.WithFieldContext(ctx, fc)

		if !started {
			started = true
			if overHTTP(ctx) {
				graphql.AddError(ctx, errSubscriptionOverHTTP)
				return &graphql.Response{Data: []byte("null")}
			}
			ch, err := ec.res.UserEvents(ctx, argStrings(fc.Args, "types"))
			if err != nil {
				subscriptionError(ctx, err)
				return nil
			}
			events = ch
		}
		if events == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			out := graphql.NewFieldSet([]graphql.CollectedField{field})
			out.Values[0] = ec._UserEvent(ctx, field.Selections, &ev)
			var buf bytes.Buffer
			out.MarshalGQL(&buf)
			return &graphql.Response{Data: buf.Bytes()}
		}
	}
}

// ---- objects ----

func (ec *executionContext) user(field graphql.CollectedField) func(context.Context, *domain.User) graphql.Marshaler {
	return func(ctx context.Context, u *domain.User) graphql.Marshaler {
		return ec._User(ctx, field.Selections, u)
	}
}

func (ec *executionContext) authPayload(field graphql.CollectedField) func(context.Context, *AuthPayload) graphql.Marshaler {
	return func(ctx context.Context, p *AuthPayload) graphql.Marshaler {
		return ec._AuthPayload(ctx, field.Selections, p)
	}
}

func (ec *executionContext) marshalOUser(ctx context.Context, u *domain.User) graphql.Marshaler {
	fc := graphql.GetFieldContext(ctx)
	return ec._User(ctx, fc.Field.Selections, u)
}

func (ec *executionContext) _User(_ context.Context, sel ast.SelectionSet, u *domain.User) graphql.Marshaler {
	if u == nil {
		return graphql.Null
	}
	fields := graphql.CollectFields(ec.OperationContext, sel, userImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("User")
		case "id":
			out.Values[i] = graphql.MarshalID(u.ID)
		case "email":
			out.Values[i] = graphql.MarshalString(u.Email)
		case "name":
			out.Values[i] = graphql.MarshalString(u.Name)
		case "role":
			out.Values[i] = graphql.MarshalString(string(u.Role))
		case "emailVerified":
			out.Values[i] = graphql.MarshalBoolean(u.EmailVerified())
		case "lastLoginAt":
			out.Values[i] = marshalOTime(u.LastLoginAt)
		case "lastActiveAt":
			out.Values[i] = marshalOTime(u.LastActiveAt)
		case "createdAt":
			out.Values[i] = graphql.MarshalTime(u.CreatedAt)
		case "updatedAt":
			out.Values[i] = graphql.MarshalTime(u.UpdatedAt)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

func (ec *executionContext) _UserPage(ctx context.Context, sel ast.SelectionSet, p *domain.UserPage) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, userPageImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("UserPage")
		case "users":
			users := make(graphql.Array, len(p.Users))
			for j := range p.Users {
				users[j] = ec._User(ctx, field.Selections, &p.Users[j])
			}
			out.Values[i] = users
		case "total":
			out.Values[i] = graphql.MarshalInt(p.Total)
		case "limit":
			out.Values[i] = graphql.MarshalInt(p.Limit)
		case "offset":
			out.Values[i] = graphql.MarshalInt(p.Offset)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

func (ec *executionContext) _AuthPayload(ctx context.Context, sel ast.SelectionSet, p *AuthPayload) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, authPayloadImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("AuthPayload")
		case "accessToken":
			out.Values[i] = graphql.MarshalString(p.Tokens.Access.Raw)
		case "accessTokenExpiresAt":
			out.Values[i] = graphql.MarshalTime(p.Tokens.Access.ExpiresAt)
		case "refreshToken":
			out.Values[i] = graphql.MarshalString(p.Tokens.Refresh.Raw)
		case "refreshTokenExpiresAt":
			out.Values[i] = graphql.MarshalTime(p.Tokens.Refresh.ExpiresAt)
		case "user":
			out.Values[i] = ec._User(ctx, field.Selections, &p.User)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

func (ec *executionContext) _UserEvent(_ context.Context, sel ast.SelectionSet, ev *domain.Event) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, userEventImplementors)
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("UserEvent")
		case "id":
			out.Values[i] = graphql.MarshalID(ev.ID)
		case "type":
			out.Values[i] = graphql.MarshalString(string(ev.Type))
		case "userId":
			out.Values[i] = graphql.MarshalID(ev.UserID)
		case "email":
			out.Values[i] = marshalOString(ev.Email)
		case "transport":
			out.Values[i] = marshalOString(string(ev.Transport))
		case "occurredAt":
			out.Values[i] = graphql.MarshalTime(ev.OccurredAt)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return out
}

// ---- scalars ----

func marshalBoolean(_ context.Context, v bool) graphql.Marshaler { return graphql.MarshalBoolean(v) }

func marshalOString(s string) graphql.Marshaler {
	if s == "" {
		return graphql.Null
	}
	return graphql.MarshalString(s)
}

func marshalOTime(t *time.Time) graphql.Marshaler {
	if t == nil {
		return graphql.Null
	}
	return graphql.MarshalTime(*t)
}

// ---- arguments ----

func argString(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// argOptString is nil when the argument is absent or null.
func argOptString(args map[string]any, name string) *string {
	s, ok := args[name].(string)
	if !ok {
		return nil
	}
	return &s
}

// argInt accepts the shapes gqlparser hands back for Int: int64 from
// literals and json.Number from decoded variables.
func argInt(args map[string]any, name string) int {
	switch v := args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

func argStrings(args map[string]any, name string) []string {
	raw, _ := args[name].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
