// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/holoauth/internal/store"
)

// startPostgres starts a PostgreSQL container and returns its connection string.
func startPostgres() (string, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("holoauth_test"),
		postgres.WithUsername("holoauth"),
		postgres.WithPassword("holoauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return "", nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}
	return connStr, func() { _ = container.Terminate(ctx) }, nil
}

var _ = Describe("Postgres schema", Ordered, func() {
	var (
		connStr  string
		cleanup  func()
		migrator *store.Migrator
		pool     *pgxpool.Pool
	)

	BeforeAll(func() {
		var err error
		connStr, cleanup, err = startPostgres()
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())

		pool, err = store.Connect(context.Background(), connStr, store.ConnectOptions{Attempts: 5})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if migrator != nil {
			_ = migrator.Close()
		}
		if cleanup != nil {
			cleanup()
		}
	})

	Describe("Migrator", func() {
		It("starts with nothing applied", func() {
			status, err := migrator.Status()
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Version).To(BeZero())
			Expect(status.Dirty).To(BeFalse())
			Expect(status.Pending).To(ContainElement(uint(1)))
		})

		It("applies every migration", func() {
			Expect(migrator.Up()).To(Succeed())

			status, err := migrator.Status()
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Version).To(BeNumerically(">=", 1))
			Expect(status.Pending).To(BeEmpty())
		})

		It("is idempotent", func() {
			Expect(migrator.Up()).To(Succeed())
		})
	})

	Describe("users table", func() {
		insert := func(id, email, username string) error {
			_, err := pool.Exec(context.Background(),
				`INSERT INTO users (id, email, username, password_hash) VALUES ($1, $2, $3, 'h')`,
				id, email, username)
			return err
		}

		It("rejects case-insensitive duplicate emails", func() {
			Expect(insert("01", "dup@example.com", "dup_one")).To(Succeed())
			Expect(insert("02", "DUP@example.com", "dup_two")).NotTo(Succeed())
		})

		It("rejects case-insensitive duplicate usernames", func() {
			Expect(insert("03", "one@example.com", "Same_Name")).To(Succeed())
			Expect(insert("04", "two@example.com", "same_name")).NotTo(Succeed())
		})

		It("rejects empty password hashes", func() {
			_, err := pool.Exec(context.Background(),
				`INSERT INTO users (id, email, username, password_hash) VALUES ('05', 'e@example.com', 'e', '')`)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("rollback", func() {
		It("drops the schema on Down", func() {
			Expect(migrator.Down()).To(Succeed())

			var exists bool
			err := pool.QueryRow(context.Background(),
				`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'users')`).Scan(&exists)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())

			version, _, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(BeZero())
		})
	})
})
