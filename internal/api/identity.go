package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/yanun0323/errors"

	"orchestrator/internal/pipeline"
)

var ErrUnauthorized = stderrors.New("api: unauthorized")

const (
	claimWallet = "wallet_address"
	claimPubKey = "pubkey"
)

// IdentityResolver maps a bearer token to the owner identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (pipeline.Params, error)
}

// JWTResolver accepts HS256 tokens whose subject is the user id.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{secret: secret}
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (pipeline.Params, error) {
	tok, err := jwt.Parse([]byte(token), jwt.WithKey(jwa.HS256, r.secret), jwt.WithValidate(true))
	if err != nil {
		return pipeline.Params{}, errors.Wrap(ErrUnauthorized, err.Error())
	}
	if tok.Subject() == "" {
		return pipeline.Params{}, errors.Wrap(ErrUnauthorized, "missing subject")
	}

	params := pipeline.Params{UserID: tok.Subject()}
	if v, ok := tok.Get(claimWallet); ok {
		params.WalletAddress = fmt.Sprint(v)
	}
	if v, ok := tok.Get(claimPubKey); ok {
		params.PubKey = fmt.Sprint(v)
	}
	return params, nil
}

func bearer(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}
