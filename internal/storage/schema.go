package storage

// Schema is the locations database schema. Applied idempotently at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS locations (
    id                  TEXT PRIMARY KEY,
    state               TEXT NOT NULL,
    alias               TEXT NOT NULL DEFAULT '',
    active_from         INTEGER NOT NULL,
    active_until        INTEGER,
    send_internal       INTEGER NOT NULL DEFAULT 1,
    send_eigenverbrauch INTEGER NOT NULL DEFAULT 0,
    send_residual_long  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS market_locations (
    id               TEXT PRIMARY KEY,
    location_id      TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
    role             TEXT NOT NULL, -- residual_short | residual_long | producer
    number           TEXT NOT NULL,
    measurand        TEXT NOT NULL,
    producer_id      TEXT,
    producer_name    TEXT,
    retriever        TEXT,
    historic_id      TEXT,
    historic_updated INTEGER,
    historic_series  BLOB
);

CREATE INDEX IF NOT EXISTS idx_market_locations_location
    ON market_locations(location_id);

CREATE TABLE IF NOT EXISTS predictions (
    id          TEXT PRIMARY KEY,
    location_id TEXT NOT NULL REFERENCES locations(id) ON DELETE CASCADE,
    type        TEXT NOT NULL,
    producer_id TEXT,
    created     INTEGER NOT NULL, -- unix nanoseconds, preserves intra-batch order
    series      BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_location
    ON predictions(location_id, type, created);

CREATE TABLE IF NOT EXISTS prediction_shipments (
    id            TEXT PRIMARY KEY,
    prediction_id TEXT NOT NULL REFERENCES predictions(id) ON DELETE CASCADE,
    receiver      TEXT NOT NULL,
    created       INTEGER NOT NULL -- unix nanoseconds
);

CREATE INDEX IF NOT EXISTS idx_shipments_prediction
    ON prediction_shipments(prediction_id);
`
