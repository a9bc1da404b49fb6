package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/zlnvch/garden/logging"
	"github.com/zlnvch/garden/models"
	"github.com/zlnvch/garden/store"
)

// Provider-specific structs
type gitHubUser struct {
	Login string `json:"login"`
	ID    int    `json:"id"`
}

type googleUser struct {
	Email string `json:"email"`
	Sub   string `json:"sub"`
}

var oauthAPIs = map[string]struct {
	URL     string
	Headers map[string]string
}{
	"github": {
		URL: "https://api.github.com/user",
		Headers: map[string]string{
			"X-GitHub-Api-Version": "2022-11-28",
		},
	},
	"google": {
		URL:     "https://openidconnect.googleapis.com/v1/userinfo",
		Headers: map[string]string{},
	},
}

var oauthConfigsTemplate = map[string]*oauth2.Config{
	"github": {
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://github.com/login/oauth/authorize",
			TokenURL: "https://github.com/login/oauth/access_token",
		},
		Scopes: []string{""},
	},
	"google": {
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes: []string{"openid", "email"},
	},
}

func addOauthEndpointsAndScopes(oauthConfigs map[string]*oauth2.Config) (map[string]*oauth2.Config, error) {
	for provider := range oauthConfigs {
		template, ok := oauthConfigsTemplate[provider]
		if !ok {
			return nil, fmt.Errorf("unsupported provider: %s", provider)
		}
		oauthConfigs[provider].Endpoint = template.Endpoint
		oauthConfigs[provider].Scopes = template.Scopes
	}

	return oauthConfigs, nil
}

func (s *Service) userInfoURL(provider string) (string, map[string]string, bool) {
	api, ok := oauthAPIs[provider]
	if !ok {
		return "", nil, false
	}
	if u, ok := s.UserInfoURLs[provider]; ok {
		return u, api.Headers, true
	}
	return api.URL, api.Headers, true
}

func (s *Service) HandleOauth(ctx context.Context, provider string, code string) (models.Moderator, error) {
	conf, ok := s.OAuthConfigs[provider]
	if !ok {
		return models.Moderator{}, fmt.Errorf("unsupported provider: %s", provider)
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		logging.Logger.Warn("oauth exchange failed", zap.String("provider", provider), zap.Error(err))
		return models.Moderator{}, err
	}

	client := conf.Client(ctx, tok)
	url, headers, ok := s.userInfoURL(provider)
	if !ok {
		return models.Moderator{}, fmt.Errorf("unsupported provider: %s", provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Moderator{}, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		logging.Logger.Warn("oauth user lookup failed", zap.String("provider", provider), zap.Error(err))
		return models.Moderator{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Moderator{}, fmt.Errorf("user lookup returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.Moderator{}, err
	}

	return parseModerator(body, provider)
}

func parseModerator(jsonData []byte, provider string) (models.Moderator, error) {
	var m models.Moderator
	m.Provider = provider

	switch provider {
	case "github":
		var gh gitHubUser
		if err := json.Unmarshal(jsonData, &gh); err != nil {
			return models.Moderator{}, err
		}
		m.Username = gh.Login
		m.ProviderId = strconv.Itoa(gh.ID)
	case "google":
		var g googleUser
		if err := json.Unmarshal(jsonData, &g); err != nil {
			return models.Moderator{}, err
		}
		m.Username = g.Email
		m.ProviderId = g.Sub
	default:
		return models.Moderator{}, fmt.Errorf("unsupported provider: %s", provider)
	}

	if m.ProviderId == "" || m.ProviderId == "0" {
		return models.Moderator{}, errors.New("provider returned no user id")
	}

	return m, nil
}

func (s *Service) CreateJWT(id string, provider string, providerId string) (string, error) {
	claims := jwt.MapClaims{
		"id":         id,
		"provider":   provider,
		"providerId": providerId,
		"exp":        time.Now().Add(24 * time.Hour).Unix(),
		"iat":        time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.JWTSecret)
	if err != nil {
		return "", err
	}

	return signedToken, nil
}

func (s *Service) VerifyJWT(tokenString string) (string, string, string, time.Time, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", "", time.Time{}, err
	}

	if !token.Valid {
		return "", "", "", time.Time{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", "", time.Time{}, errors.New("invalid token claims")
	}

	id, ok := claims["id"].(string)
	if !ok {
		return "", "", "", time.Time{}, errors.New("missing id claim")
	}

	provider, ok := claims["provider"].(string)
	if !ok {
		return "", "", "", time.Time{}, errors.New("missing provider claim")
	}

	providerId, ok := claims["providerId"].(string)
	if !ok {
		return "", "", "", time.Time{}, errors.New("missing providerId claim")
	}

	expFloat, ok := claims["exp"].(float64)
	if !ok {
		return "", "", "", time.Time{}, errors.New("missing exp claim")
	}
	expiry := time.Unix(int64(expFloat), 0)

	return id, provider, providerId, expiry, nil
}

func (s *Service) AuthenticateToken(ctx context.Context, token string) (models.Moderator, error) {
	if len(token) == 0 {
		return models.Moderator{}, fmt.Errorf("%w: token not provided", ErrUnauthorized)
	}

	_, provider, providerId, _, err := s.VerifyJWT(token)
	if err != nil {
		return models.Moderator{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	// Removing a moderator from the allow list revokes outstanding tokens
	if !s.isModerator(models.Moderator{Provider: provider, ProviderId: providerId}) {
		return models.Moderator{}, fmt.Errorf("%w: not a moderator", ErrUnauthorized)
	}

	moderator, err := s.Store.GetModerator(ctx, provider, providerId)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.Moderator{}, fmt.Errorf("%w: unknown moderator", ErrUnauthorized)
		}
		return models.Moderator{}, err
	}

	return moderator, nil
}

func (s *Service) Login(ctx context.Context, provider, code string) (models.Moderator, string, error) {
	moderator, err := s.HandleOauth(ctx, provider, code)
	if err != nil {
		return models.Moderator{}, "", fmt.Errorf("oauth failed: %w", err)
	}

	if !s.isModerator(moderator) {
		logging.Logger.Warn("login from non-moderator", zap.String("moderator", moderator.Key()))
		return models.Moderator{}, "", fmt.Errorf("%w: %s is not a moderator", ErrUnauthorized, moderator.Key())
	}

	created, err := s.Store.EnsureModerator(ctx, moderator)
	if err != nil {
		return models.Moderator{}, "", fmt.Errorf("create moderator failed: %w", err)
	}

	token, err := s.CreateJWT(created.Id, created.Provider, created.ProviderId)
	if err != nil {
		return models.Moderator{}, "", fmt.Errorf("token generation failed: %w", err)
	}

	return created, token, nil
}
