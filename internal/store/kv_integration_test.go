// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 modhost Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gridforge/modhost/internal/store"
)

var _ = Describe("PostgresKV", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		kv        *store.PostgresKV
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("modhost_test"),
			postgres.WithUsername("modhost"),
			postgres.WithPassword("modhost"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if kv != nil {
			kv.Close()
		}
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("reports a missing schema before migrating", func() {
		var err error
		kv, err = store.NewPostgresKV(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())

		err = kv.Set(ctx, "Bar", "count", []byte("1"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("mod_kv"))
	})

	It("migrates up and reports the version", func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(m.Close()).To(Succeed()) }()

		Expect(m.Up()).To(Succeed())
		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(dirty).To(BeFalse())
		Expect(version).To(Equal(uint(2)))

		pending, err := m.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		Expect(m.Up()).To(Succeed(), "second up is a no-op")
	})

	It("stores, overwrites and deletes values per namespace", func() {
		Expect(kv.Set(ctx, "Bar", "count", []byte("1"))).To(Succeed())
		Expect(kv.Set(ctx, "Bar", "count", []byte("2"))).To(Succeed())
		Expect(kv.Set(ctx, "Foo", "count", []byte("9"))).To(Succeed())

		v, err := kv.Get(ctx, "Bar", "count")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]byte("2")))

		Expect(kv.Delete(ctx, "Bar", "count")).To(Succeed())
		v, err = kv.Get(ctx, "Bar", "count")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeNil())

		v, err = kv.Get(ctx, "Foo", "count")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal([]byte("9")))
	})

	It("rolls back cleanly", func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(m.Close()).To(Succeed()) }()

		Expect(m.Down()).To(Succeed())
		version, _, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})
})
