package sqlinline

const QSelectIntegrationToken = `--sql 88aee740-a2fd-4ca5-b640-462e2bccae48
select token
from integration_tokens
where provider = $1::text;
`

const QUpsertIntegrationToken = `--sql 80068e5f-85c3-4a95-984a-16c5ded02608
insert into integration_tokens (provider, token, props, updated_at)
values ($1::text, $2::text, $3::jsonb, now())
on conflict (provider)
do update set token = excluded.token, props = excluded.props, updated_at = now();
`
