// Package storageio persists user accounts, projects and project files for the
// block-programming platform on top of pluggable record backends and blob
// stores.
//
// It exposes a single Service interface. Every mutating operation is expressed
// as a job executed by a Runner, which retries the job when the backend reports
// an optimistic-concurrency conflict on the job's entity group. Record
// backends (memory, Redis, Postgres) live under backend/, blob stores
// (memory, filesystem, S3) under storage/.
//
// Content Tiering
//
// File bytes are stored either inline in the file record or in the blob store.
// TieringPolicy decides per write, from the path and length alone. Blobs are
// uploaded before the record transaction opens; the blob a record used to
// point at is deleted only after the transaction that replaced it commits, and
// the blob uploaded by an attempt that lost a conflict is deleted before the
// next attempt runs.
//
// Entity Groups
//
// Keys form parent chains (User → UserProject, Project → File). A transaction
// is scoped to the group of one root key. Operations that touch two roots,
// such as creating or deleting a project, run two jobs in sequence and are not
// atomic across them.
package storageio
