package turnlog

const schemaSQL = `
CREATE TABLE IF NOT EXISTS chorus_turns (
  id TEXT PRIMARY KEY,            -- uuid
  session TEXT NOT NULL,          -- project/session name
  ts INTEGER NOT NULL,            -- unix timestamp the hook fired at
  turn TEXT NOT NULL              -- raw JSON array of turn content blocks
);

CREATE INDEX IF NOT EXISTS idx_chorus_turns_session_ts ON chorus_turns(session, ts);

CREATE TABLE IF NOT EXISTS chorus_events (
  id TEXT PRIMARY KEY,            -- uuid
  session TEXT NOT NULL,
  ts INTEGER NOT NULL,
  name TEXT NOT NULL,             -- hook event name, e.g. SessionStart
  data TEXT                       -- raw JSON payload, may be empty
);

CREATE INDEX IF NOT EXISTS idx_chorus_events_session_ts ON chorus_events(session, ts);
`
