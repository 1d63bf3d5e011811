package database

// Migrations returns the dashboard schema in apply order. The first
// migration only creates what a hosted platform already provides, so the
// same list runs against a bare Postgres for development.
func Migrations() []Migration {
	return []Migration{
		{Name: "001_platform_prerequisites", SQL: platformPrerequisitesSQL},
		{Name: "002_tables", SQL: tablesSQL},
		{Name: "003_handle_new_user", SQL: handleNewUserSQL},
		{Name: "004_row_level_security", SQL: rowLevelSecuritySQL},
		{Name: "005_service_role_access", SQL: serviceRoleAccessSQL},
		{Name: "006_grants", SQL: grantsSQL},
		// Databases initialized before the access helpers existed still carry
		// the mutually recursive projects/project_members policies.
		{Name: "007_project_access_helpers", SQL: rowLevelSecuritySQL},
	}
}

const platformPrerequisitesSQL = `
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'anon') THEN
		CREATE ROLE anon NOLOGIN;
	END IF;
	IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'authenticated') THEN
		CREATE ROLE authenticated NOLOGIN;
	END IF;
	IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = 'service_role') THEN
		CREATE ROLE service_role NOLOGIN BYPASSRLS;
	END IF;
END
$$;

CREATE SCHEMA IF NOT EXISTS auth;

CREATE TABLE IF NOT EXISTS auth.users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email TEXT UNIQUE,
	encrypted_password TEXT,
	email_confirmed_at TIMESTAMPTZ,
	raw_user_meta_data JSONB DEFAULT '{}'::jsonb,
	raw_app_meta_data JSONB DEFAULT '{}'::jsonb,
	role TEXT DEFAULT 'authenticated',
	aud TEXT DEFAULT 'authenticated',
	created_at TIMESTAMPTZ DEFAULT NOW(),
	updated_at TIMESTAMPTZ DEFAULT NOW()
);

DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_proc p JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = 'auth' AND p.proname = 'uid'
	) THEN
		CREATE FUNCTION auth.uid() RETURNS UUID
		LANGUAGE sql STABLE
		AS $fn$
			SELECT NULLIF(
				COALESCE(
					current_setting('request.jwt.claim.sub', true),
					current_setting('request.jwt.claims', true)::jsonb ->> 'sub'
				),
				''
			)::uuid
		$fn$;
	END IF;
END
$$;

GRANT USAGE ON SCHEMA auth TO anon, authenticated, service_role;
GRANT EXECUTE ON FUNCTION auth.uid() TO anon, authenticated, service_role;
`

const tablesSQL = `
CREATE TABLE IF NOT EXISTS public.profiles (
	id UUID REFERENCES auth.users ON DELETE CASCADE PRIMARY KEY,
	name TEXT,
	avatar_url TEXT,
	created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS public.projects (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	description TEXT,
	owner_id UUID REFERENCES public.profiles(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS public.tasks (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	title TEXT NOT NULL,
	description TEXT,
	status TEXT DEFAULT 'todo' CHECK (status IN ('todo', 'in_progress', 'done')),
	project_id UUID REFERENCES public.projects(id) ON DELETE CASCADE,
	assigned_to UUID REFERENCES public.profiles(id),
	created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS public.comments (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	task_id UUID REFERENCES public.tasks(id) ON DELETE CASCADE,
	author_id UUID REFERENCES public.profiles(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS public.project_members (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	project_id UUID REFERENCES public.projects(id) ON DELETE CASCADE,
	user_id UUID REFERENCES public.profiles(id) ON DELETE CASCADE,
	role TEXT DEFAULT 'member'
);

CREATE INDEX IF NOT EXISTS idx_projects_owner_created ON public.projects (owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON public.tasks (project_id);
`

const handleNewUserSQL = `
CREATE OR REPLACE FUNCTION public.handle_new_user()
RETURNS TRIGGER AS $$
BEGIN
	INSERT INTO public.profiles (id, name, avatar_url)
	VALUES (
		NEW.id,
		COALESCE(NEW.raw_user_meta_data ->> 'name', NEW.email),
		NEW.raw_user_meta_data ->> 'avatar_url'
	);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql SECURITY DEFINER;

DROP TRIGGER IF EXISTS on_auth_user_created ON auth.users;
CREATE TRIGGER on_auth_user_created
	AFTER INSERT ON auth.users
	FOR EACH ROW
	EXECUTE PROCEDURE public.handle_new_user();
`

const rowLevelSecuritySQL = `
ALTER TABLE public.profiles ENABLE ROW LEVEL SECURITY;
ALTER TABLE public.projects ENABLE ROW LEVEL SECURITY;
ALTER TABLE public.tasks ENABLE ROW LEVEL SECURITY;
ALTER TABLE public.comments ENABLE ROW LEVEL SECURITY;
ALTER TABLE public.project_members ENABLE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS "Users can view their own profile" ON public.profiles;
CREATE POLICY "Users can view their own profile"
	ON public.profiles FOR SELECT
	USING (auth.uid() = id);

-- Policies on projects, tasks and project_members consult each other's rows.
-- Reading through these helpers skips RLS on the inner lookup, which keeps
-- the policy graph acyclic.
CREATE OR REPLACE FUNCTION public.owns_project(pid UUID)
RETURNS BOOLEAN
LANGUAGE sql STABLE SECURITY DEFINER
SET search_path = public
AS $$
	SELECT EXISTS (SELECT 1 FROM public.projects WHERE id = pid AND owner_id = auth.uid());
$$;

CREATE OR REPLACE FUNCTION public.is_project_member(pid UUID)
RETURNS BOOLEAN
LANGUAGE sql STABLE SECURITY DEFINER
SET search_path = public
AS $$
	SELECT EXISTS (SELECT 1 FROM public.project_members WHERE project_id = pid AND user_id = auth.uid());
$$;

REVOKE ALL ON FUNCTION public.owns_project(UUID), public.is_project_member(UUID) FROM PUBLIC;
GRANT EXECUTE ON FUNCTION public.owns_project(UUID), public.is_project_member(UUID) TO authenticated, service_role;

DROP POLICY IF EXISTS "Users can view owned or member projects" ON public.projects;
CREATE POLICY "Users can view owned or member projects"
	ON public.projects FOR SELECT
	USING (owner_id = auth.uid() OR public.is_project_member(id));

DROP POLICY IF EXISTS "Owners can create projects" ON public.projects;
CREATE POLICY "Owners can create projects"
	ON public.projects FOR INSERT
	WITH CHECK (owner_id = auth.uid());

DROP POLICY IF EXISTS "Owners can update projects" ON public.projects;
CREATE POLICY "Owners can update projects"
	ON public.projects FOR UPDATE
	USING (owner_id = auth.uid())
	WITH CHECK (owner_id = auth.uid());

DROP POLICY IF EXISTS "Owners can delete projects" ON public.projects;
CREATE POLICY "Owners can delete projects"
	ON public.projects FOR DELETE
	USING (owner_id = auth.uid());

DROP POLICY IF EXISTS "Users can view tasks from their projects" ON public.tasks;
CREATE POLICY "Users can view tasks from their projects"
	ON public.tasks FOR SELECT
	USING (public.owns_project(project_id) OR public.is_project_member(project_id));

DROP POLICY IF EXISTS "Owners can add tasks to their projects" ON public.tasks;
CREATE POLICY "Owners can add tasks to their projects"
	ON public.tasks FOR INSERT
	WITH CHECK (public.owns_project(project_id));

DROP POLICY IF EXISTS "Users can view project memberships" ON public.project_members;
CREATE POLICY "Users can view project memberships"
	ON public.project_members FOR SELECT
	USING (user_id = auth.uid() OR public.owns_project(project_id));
`

const serviceRoleAccessSQL = `
DO $$
DECLARE
	t TEXT;
BEGIN
	FOREACH t IN ARRAY ARRAY['profiles', 'projects', 'tasks', 'comments', 'project_members'] LOOP
		EXECUTE format('DROP POLICY IF EXISTS "Service role has full access" ON public.%I', t);
		EXECUTE format(
			'CREATE POLICY "Service role has full access" ON public.%I FOR ALL TO service_role USING (true) WITH CHECK (true)',
			t
		);
	END LOOP;
END
$$;
`

const grantsSQL = `
GRANT USAGE ON SCHEMA public TO anon, authenticated, service_role;
GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO authenticated, service_role;
`
