package database

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS resources (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            category TEXT NOT NULL DEFAULT '',
            hourly_rate REAL NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY,
            email TEXT NOT NULL DEFAULT '',
            name TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'user',
            last_activity INTEGER NOT NULL,
            created_at INTEGER NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            resource_id INTEGER NOT NULL REFERENCES resources(id),
            start_time INTEGER NOT NULL,
            end_time INTEGER NOT NULL,
            state TEXT NOT NULL DEFAULT 'pending',
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL,
            CHECK (end_time > start_time)
        )`,
	`CREATE TABLE IF NOT EXISTS payment_methods (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            type TEXT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS payments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            reservation_id INTEGER NOT NULL REFERENCES reservations(id),
            amount INTEGER NOT NULL,
            currency TEXT NOT NULL,
            state TEXT NOT NULL DEFAULT 'pending',
            payment_method_id INTEGER REFERENCES payment_methods(id),
            session_ref TEXT,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS transactions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            payment_id INTEGER NOT NULL REFERENCES payments(id),
            gateway_ref TEXT NOT NULL,
            status TEXT NOT NULL,
            details TEXT NOT NULL DEFAULT '{}',
            created_at INTEGER NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS notifications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            type TEXT NOT NULL,
            channel TEXT NOT NULL,
            subject TEXT NOT NULL,
            body TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            error TEXT,
            created_at INTEGER NOT NULL,
            sent_at INTEGER
        )`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            entity_id INTEGER NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at INTEGER NOT NULL,
            processed_at INTEGER,
            next_retry_at INTEGER
        )`,

	`CREATE INDEX IF NOT EXISTS idx_reservations_resource_time ON reservations(resource_id, start_time, end_time)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_user_id ON reservations(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_reservation_id ON payments(reservation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_session_ref ON payments(session_ref)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_payment_ref ON transactions(payment_id, gateway_ref)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS resources (
            id BIGINT PRIMARY KEY,
            name TEXT NOT NULL,
            category TEXT NOT NULL DEFAULT '',
            hourly_rate DOUBLE PRECISION NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS users (
            id BIGINT PRIMARY KEY,
            email TEXT NOT NULL DEFAULT '',
            name TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'user',
            last_activity BIGINT NOT NULL,
            created_at BIGINT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS reservations (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            resource_id BIGINT NOT NULL REFERENCES resources(id),
            start_time BIGINT NOT NULL,
            end_time BIGINT NOT NULL,
            state TEXT NOT NULL DEFAULT 'pending',
            created_at BIGINT NOT NULL,
            updated_at BIGINT NOT NULL,
            CHECK (end_time > start_time)
        )`,
	`CREATE TABLE IF NOT EXISTS payment_methods (
            id BIGINT PRIMARY KEY,
            name TEXT NOT NULL,
            type TEXT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS payments (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            reservation_id BIGINT NOT NULL REFERENCES reservations(id),
            amount BIGINT NOT NULL,
            currency TEXT NOT NULL,
            state TEXT NOT NULL DEFAULT 'pending',
            payment_method_id BIGINT REFERENCES payment_methods(id),
            session_ref TEXT,
            created_at BIGINT NOT NULL,
            updated_at BIGINT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS transactions (
            id BIGSERIAL PRIMARY KEY,
            payment_id BIGINT NOT NULL REFERENCES payments(id),
            gateway_ref TEXT NOT NULL,
            status TEXT NOT NULL,
            details TEXT NOT NULL DEFAULT '{}',
            created_at BIGINT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS notifications (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            type TEXT NOT NULL,
            channel TEXT NOT NULL,
            subject TEXT NOT NULL,
            body TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            error TEXT,
            created_at BIGINT NOT NULL,
            sent_at BIGINT
        )`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
            id BIGSERIAL PRIMARY KEY,
            task_type TEXT NOT NULL,
            entity_id BIGINT NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at BIGINT NOT NULL,
            processed_at BIGINT,
            next_retry_at BIGINT
        )`,

	`CREATE INDEX IF NOT EXISTS idx_reservations_resource_time ON reservations(resource_id, start_time, end_time)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_user_id ON reservations(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_reservation_id ON payments(reservation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_session_ref ON payments(session_ref)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_payment_ref ON transactions(payment_id, gateway_ref)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
}
