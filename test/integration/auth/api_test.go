// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/holoauth/internal/auth"
)

type response struct {
	status  int
	body    map[string]any
	cookies []*http.Cookie
}

func (r response) token() string {
	for _, c := range r.cookies {
		if c.Name == auth.DefaultCookieName {
			return c.Value
		}
	}
	return ""
}

func call(method, path, body, token string) response {
	GinkgoHelper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, env.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: token})
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	out := response{status: resp.StatusCode, cookies: resp.Cookies()}
	Expect(json.NewDecoder(resp.Body).Decode(&out.body)).To(Succeed())
	return out
}

func registration(email, username string) string {
	return fmt.Sprintf(`{"firstName":"Ada","lastName":"Lovelace","email":%q,"password":"correct horse","userName":%q}`,
		email, username)
}

var _ = Describe("Auth API", func() {
	BeforeEach(resetUsers)

	Describe("session lifecycle", func() {
		It("keeps a token valid after logout until it expires", func() {
			reg := call(http.MethodPost, "/auth/register", registration("Ada@Example.com", "ada"), "")
			Expect(reg.status).To(Equal(http.StatusCreated))
			token := reg.token()
			Expect(token).NotTo(BeEmpty())

			me := call(http.MethodGet, "/auth/me", "", token)
			Expect(me.status).To(Equal(http.StatusOK))
			Expect(me.body["user"]).To(HaveKeyWithValue("email", "ada@example.com"))

			out := call(http.MethodPost, "/auth/logout", "", token)
			Expect(out.status).To(Equal(http.StatusOK))
			Expect(out.token()).To(BeEmpty())

			Expect(call(http.MethodGet, "/auth/me", "", token).status).To(Equal(http.StatusOK))
		})

		It("logs in by email or username, case-insensitively", func() {
			Expect(call(http.MethodPost, "/auth/register", registration("ada@example.com", "Ada"), "").status).
				To(Equal(http.StatusCreated))

			for _, identifier := range []string{"ADA@example.com", "ada", "ADA"} {
				login := call(http.MethodPost, "/auth/login",
					fmt.Sprintf(`{"identifier":%q,"password":"correct horse"}`, identifier), "")
				Expect(login.status).To(Equal(http.StatusOK), identifier)
				Expect(login.token()).NotTo(BeEmpty())
			}
		})
	})

	Describe("failures", func() {
		BeforeEach(func() {
			Expect(call(http.MethodPost, "/auth/register", registration("ada@example.com", "ada"), "").status).
				To(Equal(http.StatusCreated))
		})

		It("rejects duplicates by email or username", func() {
			Expect(call(http.MethodPost, "/auth/register", registration("ADA@example.com", "other"), "").body).
				To(HaveKeyWithValue("message", "user already exists"))
			Expect(call(http.MethodPost, "/auth/register", registration("other@example.com", "ADA"), "").status).
				To(Equal(http.StatusBadRequest))
		})

		It("answers wrong passwords and unknown users identically", func() {
			wrong := call(http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"nope"}`, "")
			unknown := call(http.MethodPost, "/auth/login", `{"email":"ghost@example.com","password":"nope"}`, "")
			Expect(wrong.status).To(Equal(http.StatusUnauthorized))
			Expect(unknown).To(Equal(wrong))
		})
	})

	It("creates exactly one account under concurrent registration", func() {
		const racers = 8
		statuses := make(chan int, racers)
		var wg sync.WaitGroup
		for i := range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				body := registration("race@example.com", fmt.Sprintf("racer%d", i))
				statuses <- call(http.MethodPost, "/auth/register", body, "").status
			}()
		}
		wg.Wait()
		close(statuses)

		counts := map[int]int{}
		for s := range statuses {
			counts[s]++
		}
		Expect(counts).To(Equal(map[int]int{http.StatusCreated: 1, http.StatusBadRequest: racers - 1}))

		var n int
		Expect(env.pool.QueryRow(context.Background(),
			"SELECT count(*) FROM users WHERE email = 'race@example.com'").Scan(&n)).To(Succeed())
		Expect(n).To(Equal(1))
	})

	It("upgrades legacy bcrypt hashes on login", func() {
		Expect(call(http.MethodPost, "/auth/register", registration("old@example.com", "old"), "").status).
			To(Equal(http.StatusCreated))
		legacy, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		_, err = env.pool.Exec(context.Background(),
			"UPDATE users SET password_hash = $1 WHERE username = 'old'", string(legacy))
		Expect(err).NotTo(HaveOccurred())

		Expect(call(http.MethodPost, "/auth/login", `{"identifier":"old","password":"correct horse"}`, "").status).
			To(Equal(http.StatusOK))

		var hash string
		Expect(env.pool.QueryRow(context.Background(),
			"SELECT password_hash FROM users WHERE username = 'old'").Scan(&hash)).To(Succeed())
		Expect(hash).To(HavePrefix("$argon2id$"))
	})

	It("records auth outcomes", func() {
		before := testutil.ToFloat64(env.metrics.AuthAttempts.WithLabelValues(auth.OpLogin, auth.OutcomeInvalidCredentials))
		call(http.MethodPost, "/auth/login", `{"email":"ghost@example.com","password":"x"}`, "")
		after := testutil.ToFloat64(env.metrics.AuthAttempts.WithLabelValues(auth.OpLogin, auth.OutcomeInvalidCredentials))
		Expect(after - before).To(BeNumerically("==", 1))
	})
})
